// Package corpus loads the publication table and its embedding vectors.
//
// A corpus is two files produced by the ingestion step: a CSV table with one
// row per publication and a 2-D NumPy array whose row i is the embedding of
// table row i. Both are read once, validated against each other, and never
// modified afterwards.
package corpus

import (
	"errors"
	"fmt"

	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/semantic"
)

// Load errors. Both are fatal for the process.
var (
	ErrDataUnavailable = errors.New("corpus data unavailable")
	ErrDataIntegrity   = errors.New("corpus data integrity error")
)

// Paths locates the two corpus files.
type Paths struct {
	Records string // CSV table
	Vectors string // .npy array
}

// Corpus is a loaded, validated corpus. It is safe for concurrent reads.
type Corpus struct {
	records    []publication.Record
	vectors    [][]float32
	ranker     semantic.Ranker
	dimensions int
}

// New validates records against vectors and builds a brute-force ranker.
func New(records []publication.Record, vectors [][]float32) (*Corpus, error) {
	if len(records) != len(vectors) {
		return nil, fmt.Errorf("%w: %d records but %d vectors", ErrDataIntegrity, len(records), len(vectors))
	}
	ranker, err := semantic.NewBruteForce(vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}
	c, err := NewWithRanker(records, ranker)
	if err != nil {
		return nil, err
	}
	c.vectors = vectors
	return c, nil
}

// NewWithRanker builds a corpus over an existing index. Row i of the index
// must belong to records[i]. Vector lookups are unavailable on such a corpus.
func NewWithRanker(records []publication.Record, ranker semantic.Ranker) (*Corpus, error) {
	if ranker == nil {
		return nil, fmt.Errorf("%w: no ranker", ErrDataIntegrity)
	}
	if ranker.Len() != len(records) {
		return nil, fmt.Errorf("%w: %d records but %d indexed vectors", ErrDataIntegrity, len(records), ranker.Len())
	}
	return &Corpus{
		records:    records,
		ranker:     ranker,
		dimensions: ranker.Dimensions(),
	}, nil
}

// Load reads and validates both corpus files. On error no corpus is returned.
func Load(paths Paths) (*Corpus, error) {
	records, err := ReadRecords(paths.Records)
	if err != nil {
		return nil, err
	}
	vectors, err := ReadVectors(paths.Vectors)
	if err != nil {
		return nil, err
	}
	return New(records, vectors)
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	return len(c.records)
}

// Dimensions returns the embedding dimension, 0 for an empty corpus.
func (c *Corpus) Dimensions() int {
	return c.dimensions
}

// Record returns record i.
func (c *Corpus) Record(i int) (publication.Record, bool) {
	if i < 0 || i >= len(c.records) {
		return publication.Record{}, false
	}
	return c.records[i], true
}

// Records returns all records in table order. Callers must not modify the
// returned slice.
func (c *Corpus) Records() []publication.Record {
	return c.records
}

// Vector returns the embedding of record i. Callers must not modify it.
func (c *Corpus) Vector(i int) ([]float32, bool) {
	if i < 0 || i >= len(c.vectors) {
		return nil, false
	}
	return c.vectors[i], true
}

// Ranker returns the similarity ranker over the corpus vectors.
func (c *Corpus) Ranker() semantic.Ranker {
	return c.ranker
}
