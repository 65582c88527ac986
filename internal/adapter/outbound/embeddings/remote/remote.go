// Package remote provides an EmbeddingService backed by an HTTP embedding
// API compatible with the OpenAI embeddings wire format.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"embeddra/internal/application/common/slogger"
	"embeddra/internal/config"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBatchSize = 64
	defaultTimeout   = 30 * time.Second
)

// ErrBackendUnavailable marks transport failures and server-side errors.
// Callers treat it as a temporary condition worth retrying.
var ErrBackendUnavailable = errors.New("embedding backend unavailable")

// Client implements the EmbeddingService port over HTTP.
type Client struct {
	client     *resty.Client
	url        string
	model      string
	dimensions int
	batchSize  int
}

// NewClient creates a remote embedding client from configuration.
func NewClient(cfg config.EmbeddingConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("embedding URL cannot be empty")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{
		client:     client,
		url:        cfg.URL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
	}, nil
}

// Dimensions returns the vector size the backend is configured to produce.
func (c *Client) Dimensions() int {
	return c.dimensions
}

type embedRequest struct {
	Model      string   `json:"model,omitempty"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// EmbedTexts returns one vector per input text, preserving order. An empty
// input yields an empty result without touching the backend. Requests larger
// than the configured batch size are split into multiple calls.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result embedResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(embedRequest{
			Model:      c.model,
			Input:      texts,
			Dimensions: c.dimensions,
		}).
		SetResult(&result).
		SetError(&result).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		slogger.Warn(ctx, "Embedding backend returned retryable status", slogger.Fields{
			"status": resp.StatusCode(),
		})
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode())
	}
	if resp.StatusCode() != 200 {
		if result.Error.Message != "" {
			return nil, fmt.Errorf("embedding API error: %s", result.Error.Message)
		}
		return nil, fmt.Errorf("embedding API error: status %d", resp.StatusCode())
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(result.Data), len(texts))
	}

	// The API may return items out of order; place them by index.
	vectors := make([][]float32, len(texts))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vector := range vectors {
		if vector == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return vectors, nil
}
