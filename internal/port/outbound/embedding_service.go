package outbound

import "context"

// EmbeddingService defines the outbound port for turning record text into
// dense vectors.
type EmbeddingService interface {
	// EmbedTexts returns one vector per input text, in input order. An empty
	// input yields an empty result without touching the backend.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size this service produces.
	Dimensions() int
}
