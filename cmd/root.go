package cmd

import (
	"fmt"
	"os"
	"strings"

	"embeddra/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "embeddra",
	Short: "Asynchronous tenant catalog ingestion and vector indexing",
	Long: `Embeddra ingests tenant product catalogs, embeds them, and bulk-loads
the vectors into a per-tenant search index.

The system supports:
- Catalog uploads (JSON and CSV) through an admin API
- Durable job queueing with retry and dead-letter topology on NATS JetStream
- Embedding generation via a remote API or a deterministic local provider
- Bulk vector indexing into Qdrant, one collection per tenant
- Job status tracking in PostgreSQL`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	// Bind flags to viper
	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Set config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("EMBEDDRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment
	}

	// Load configuration
	cfg = config.New(v)
}

func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.max_body_bytes", 10<<20)

	// Worker defaults
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.prefetch", 1)
	v.SetDefault("worker.queue_group", "ingestion-workers")
	v.SetDefault("worker.job_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "embeddra")
	v.SetDefault("database.name", "embeddra")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Queue defaults
	v.SetDefault("queue.max_retry_count", 5)
	v.SetDefault("queue.retry_delay", "30s")

	// Qdrant defaults
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.batch_size", 100)
	v.SetDefault("qdrant.collection", "catalog")

	// Embedding defaults
	v.SetDefault("embedding.provider", "simple")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.batch_size", 64)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}
