package corpus

import (
	"context"
	"sync"

	"github.com/spacebio/engine/internal/metrics"
)

// Loader produces a corpus. It is called by Store at most once per success.
type Loader func() (*Corpus, error)

// FileLoader returns a Loader that reads paths.
func FileLoader(paths Paths) Loader {
	return func() (*Corpus, error) {
		return Load(paths)
	}
}

// Store holds the process-wide corpus and loads it on first use.
//
// Concurrent first callers block on the same load. A failed load leaves the
// store empty so the next Get retries.
type Store struct {
	mu     sync.Mutex
	loader Loader
	loaded bool
	corpus *Corpus
}

// NewStore creates a store backed by loader.
func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// Get returns the corpus, loading it if needed.
func (s *Store) Get(ctx context.Context) (*Corpus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.corpus, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.loader()
	if err != nil {
		return nil, err
	}

	s.corpus = c
	s.loaded = true
	metrics.CorpusRecords.Set(float64(c.Len()))
	return c, nil
}

// Loaded reports whether the corpus has been loaded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}
