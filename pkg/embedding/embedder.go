// Package embedding turns complaint free text into fixed-dimension vectors
// for similarity scoring against existing incidents. Two interchangeable
// backends are provided: a deterministic local embedder for offline/dev use,
// and an HTTP-backed client against an external embedding service with a
// Redis-backed cache in front of it.
package embedding

import "context"

// DefaultDimension is used whenever a caller configures a non-positive
// dimension.
const DefaultDimension = 384

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// EmbedResponse is the wire shape returned by the external embedding
// service's POST /api/v1/embed endpoint.
type EmbedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model"`
}

// HealthResponse is the wire shape returned by the external embedding
// service's GET /health endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}
