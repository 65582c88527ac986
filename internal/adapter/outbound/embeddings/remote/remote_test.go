package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"embeddra/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(url string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Provider:   "remote",
		URL:        url,
		Model:      "test-model",
		Dimensions: 3,
		Timeout:    2 * time.Second,
		BatchSize:  2,
	}
}

func embeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	t.Run("should reject empty URL", func(t *testing.T) {
		_, err := NewClient(config.EmbeddingConfig{Dimensions: 3})
		require.Error(t, err)
	})

	t.Run("should reject non-positive dimensions", func(t *testing.T) {
		_, err := NewClient(config.EmbeddingConfig{URL: "http://localhost:9999"})
		require.Error(t, err)
	})

	t.Run("should apply defaults", func(t *testing.T) {
		client, err := NewClient(config.EmbeddingConfig{URL: "http://localhost:9999", Dimensions: 3})
		require.NoError(t, err)
		assert.Equal(t, defaultBatchSize, client.batchSize)
		assert.Equal(t, 3, client.Dimensions())
	})
}

func TestClient_EmbedTexts(t *testing.T) {
	t.Run("should return empty result for empty input without calling backend", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})

		client, err := NewClient(validConfig(server.URL))
		require.NoError(t, err)

		vectors, err := client.EmbedTexts(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Zero(t, calls.Load())
	})

	t.Run("should embed texts preserving order", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			resp := embedResponse{}
			// Reverse order to exercise index-based placement.
			for i := len(req.Input) - 1; i >= 0; i-- {
				resp.Data = append(resp.Data, struct {
					Embedding []float32 `json:"embedding"`
					Index     int       `json:"index"`
				}{Embedding: []float32{float32(i), 0, 0}, Index: i})
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		})

		client, err := NewClient(validConfig(server.URL))
		require.NoError(t, err)

		vectors, err := client.EmbedTexts(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, float32(0), vectors[0][0])
		assert.Equal(t, float32(1), vectors[1][0])
	})

	t.Run("should split large inputs into batches", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.LessOrEqual(t, len(req.Input), 2)

			resp := embedResponse{}
			for i := range req.Input {
				resp.Data = append(resp.Data, struct {
					Embedding []float32 `json:"embedding"`
					Index     int       `json:"index"`
				}{Embedding: []float32{1, 2, 3}, Index: i})
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		})

		client, err := NewClient(validConfig(server.URL))
		require.NoError(t, err)

		vectors, err := client.EmbedTexts(context.Background(), []string{"a", "b", "c", "d", "e"})
		require.NoError(t, err)
		assert.Len(t, vectors, 5)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("should report server errors as backend unavailable", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		client, err := NewClient(validConfig(server.URL))
		require.NoError(t, err)

		_, err = client.EmbedTexts(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})

	t.Run("should report rate limiting as backend unavailable", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		client, err := NewClient(validConfig(server.URL))
		require.NoError(t, err)

		_, err = client.EmbedTexts(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})

	t.Run("should surface client errors without the unavailable marker", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "input too long"},
			})
		})

		client, err := NewClient(validConfig(server.URL))
		require.NoError(t, err)

		_, err = client.EmbedTexts(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBackendUnavailable)
		assert.Contains(t, err.Error(), "input too long")
	})

	t.Run("should reject responses with missing embeddings", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(embedResponse{}))
		})

		client, err := NewClient(validConfig(server.URL))
		require.NoError(t, err)

		_, err = client.EmbedTexts(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected number of embeddings")
	})

	t.Run("should treat unreachable backend as unavailable", func(t *testing.T) {
		cfg := validConfig("http://127.0.0.1:1")
		cfg.Timeout = 500 * time.Millisecond

		client, err := NewClient(cfg)
		require.NoError(t, err)

		_, err = client.EmbedTexts(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})
}
