// Package simple provides a deterministic local embedding service. It
// produces fixed-size vectors seeded by the SHA256 of the input text, which
// exercises the full pipeline without an external backend and keeps
// re-embedding the same record reproducible.
package simple

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

const defaultDimensions = 384

// Service implements a deterministic EmbeddingService.
type Service struct {
	dimensions int
}

// New creates a simple embedding service producing vectors of the given
// size. A non-positive size falls back to the default.
func New(dimensions int) *Service {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Service{dimensions: dimensions}
}

// Dimensions returns the vector size this service produces.
func (s *Service) Dimensions() int {
	return s.dimensions
}

// EmbedTexts returns one deterministic vector per input text. An empty input
// yields an empty result.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vectors[i] = s.embed(text)
	}
	return vectors, nil
}

// embed derives the vector from SHA256(text) run through an xorshift64*
// PRNG, then L2-normalizes it.
func (s *Service) embed(text string) []float32 {
	sum := sha256.Sum256([]byte(text))

	seed := binary.LittleEndian.Uint64(sum[:8])
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	x := seed

	out := make([]float64, s.dimensions)
	for i := range out {
		// xorshift64*
		x ^= x >> 12
		x ^= x << 25
		x ^= x >> 27
		x *= 0x2545F4914F6CDD1D

		// Upper 53 bits make a float in [0,1); scale to [-1,1].
		mantissa := (x >> 11) & ((1 << 53) - 1)
		f := float64(mantissa) / float64(1<<53)
		out[i] = 2.0*f - 1.0
	}

	var norm float64
	for _, v := range out {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vector := make([]float32, len(out))
	if norm > 0 {
		inv := 1.0 / norm
		for i, v := range out {
			vector[i] = float32(v * inv)
		}
	} else {
		for i, v := range out {
			vector[i] = float32(v)
		}
	}
	return vector
}
