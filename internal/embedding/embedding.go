// Package embedding turns publication text and search queries into vectors.
//
// Two providers are available: a local Ollama server and any endpoint that
// speaks the OpenAI embeddings API. Both must produce vectors in the same
// space as the stored corpus vectors, so the model is fixed per corpus.
package embedding

import "errors"

// ErrProvider wraps any failure reported by an embedding backend.
var ErrProvider = errors.New("embedding provider error")

// Embedding is one vector produced by a Provider.
type Embedding struct {
	Vector []float32
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}
