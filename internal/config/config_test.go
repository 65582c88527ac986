package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validViper() *viper.Viper {
	v := viper.New()
	v.Set("database.host", "localhost")
	v.Set("database.port", 5432)
	v.Set("database.user", "embeddra")
	v.Set("database.name", "embeddra")
	v.Set("database.sslmode", "disable")
	v.Set("worker.concurrency", 4)
	v.Set("worker.prefetch", 8)
	v.Set("queue.max_retry_count", 5)
	v.Set("queue.retry_delay", "30s")
	v.Set("embedding.provider", "simple")
	v.Set("embedding.dimensions", 384)
	v.Set("log.level", "info")
	v.Set("log.format", "json")
	return v
}

func TestNew(t *testing.T) {
	t.Run("should load a valid configuration", func(t *testing.T) {
		cfg := New(validViper())

		assert.Equal(t, "embeddra", cfg.Database.User)
		assert.Equal(t, 5, cfg.Queue.MaxRetryCount)
		assert.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)
		assert.Equal(t, 384, cfg.Embedding.Dimensions)
	})

	t.Run("should panic on missing database user", func(t *testing.T) {
		v := validViper()
		v.Set("database.user", "")

		assert.Panics(t, func() { New(v) })
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("should reject out-of-range database port", func(t *testing.T) {
		v := validViper()
		v.Set("database.port", 70000)
		cfg := Config{}
		require.NoError(t, v.Unmarshal(&cfg))

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.port")
	})

	t.Run("should reject zero worker concurrency", func(t *testing.T) {
		v := validViper()
		v.Set("worker.concurrency", 0)
		cfg := Config{}
		require.NoError(t, v.Unmarshal(&cfg))

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "worker.concurrency")
	})

	t.Run("should reject negative retry count", func(t *testing.T) {
		v := validViper()
		v.Set("queue.max_retry_count", -1)
		cfg := Config{}
		require.NoError(t, v.Unmarshal(&cfg))

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue.max_retry_count")
	})

	t.Run("should require a URL for the remote embedding provider", func(t *testing.T) {
		v := validViper()
		v.Set("embedding.provider", "remote")
		cfg := Config{}
		require.NoError(t, v.Unmarshal(&cfg))

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding.url")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:    "db.internal",
		Port:    5432,
		User:    "embeddra",
		Name:    "catalog",
		SSLMode: "require",
	}

	dsn := d.DSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "dbname=catalog")
	assert.Contains(t, dsn, "sslmode=require")
}
