package semantic

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Errors returned by ranking operations.
var (
	ErrInvalidLimit      = errors.New("limit must be at least 1")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrRecordNotIndexed  = errors.New("record not in semantic index")
)

// Ranker scores a corpus against a query vector.
// BruteForce is the only implementation; an approximate index can satisfy the
// same interface without changing callers.
type Ranker interface {
	// Rank returns at most k hits ordered by descending score, ties broken by
	// ascending corpus index.
	Rank(query []float32, k int) ([]Hit, error)

	// FindSimilar ranks the corpus against the indexed vector at index,
	// excluding index itself. Unknown indices return ErrRecordNotIndexed.
	FindSimilar(index, k int) ([]Hit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dimensions returns the vector dimension, 0 when empty.
	Dimensions() int
}

var _ Ranker = (*BruteForce)(nil)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched lengths, empty or zero-norm vectors, and any
// non-finite result.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	return safeDivide(dot, math.Sqrt(normA)*math.Sqrt(normB))
}

// safeDivide returns num/den, or 0 when the quotient is undefined.
func safeDivide(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	q := num / den
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}

// BruteForce ranks by scoring every vector. O(N·D) per query.
type BruteForce struct {
	vectors    [][]float32
	norms      []float64
	dimensions int
}

// NewBruteForce creates a ranker over the given vectors.
// All vectors must share one dimension. The slice is retained, not copied.
func NewBruteForce(vectors [][]float32) (*BruteForce, error) {
	bf := &BruteForce{
		vectors: vectors,
		norms:   make([]float64, len(vectors)),
	}
	for i, v := range vectors {
		if i == 0 {
			bf.dimensions = len(v)
		} else if len(v) != bf.dimensions {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, len(v), bf.dimensions)
		}
		bf.norms[i] = norm(v)
	}
	return bf, nil
}

// Len returns the number of indexed vectors.
func (bf *BruteForce) Len() int {
	return len(bf.vectors)
}

// Dimensions returns the vector dimension, 0 for an empty ranker.
func (bf *BruteForce) Dimensions() int {
	return bf.dimensions
}

// Rank scores every vector against query and returns the top k hits.
// k larger than the corpus returns every entry.
func (bf *BruteForce) Rank(query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, ErrInvalidLimit
	}
	if len(bf.vectors) == 0 {
		return []Hit{}, nil
	}
	if len(query) != bf.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			ErrDimensionMismatch, len(query), bf.dimensions)
	}

	queryNorm := norm(query)
	hits := make([]Hit, len(bf.vectors))
	for i, v := range bf.vectors {
		hits[i] = Hit{Index: i, Score: safeDivide(dot(v, query), bf.norms[i]*queryNorm)}
	}

	return topK(hits, k), nil
}

// FindSimilar ranks the corpus against the vector at index.
// The source record is excluded from results.
func (bf *BruteForce) FindSimilar(index, k int) ([]Hit, error) {
	if k < 1 {
		return nil, ErrInvalidLimit
	}
	if index < 0 || index >= len(bf.vectors) {
		return nil, ErrRecordNotIndexed
	}

	source := bf.vectors[index]
	sourceNorm := bf.norms[index]
	hits := make([]Hit, 0, len(bf.vectors)-1)
	for i, v := range bf.vectors {
		if i == index {
			continue
		}
		hits = append(hits, Hit{Index: i, Score: safeDivide(dot(v, source), bf.norms[i]*sourceNorm)})
	}

	return topK(hits, k), nil
}

// topK sorts hits by descending score, then ascending index, and truncates to k.
func topK(hits []Hit, k int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Index < hits[j].Index
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	n := norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
