// Package semantic provides similarity ranking over publication embeddings.
package semantic

import "time"

// Hit is one ranked corpus entry.
type Hit struct {
	Index int     `json:"index"` // Position in the corpus (record ID)
	Score float64 `json:"score"` // Cosine similarity; 0 when undefined
}

// BuildStats contains statistics from embedding generation.
type BuildStats struct {
	RecordsEmbedded int           `json:"records_embedded"`
	TitleOnly       int           `json:"title_only"`   // Records embedded without an abstract
	PDFFallback     int           `json:"pdf_fallback"` // Records whose abstract came from a local PDF
	Model           string        `json:"model"`
	Dimensions      int           `json:"dimensions"`
	Duration        time.Duration `json:"duration"`
	VectorsBytes    int64         `json:"vectors_bytes"`
}
