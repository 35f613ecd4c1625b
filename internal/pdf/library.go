// Package pdf extracts text from locally stored publication PDFs.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spacebio/engine/internal/publication"
)

// Defaults for Library.
const (
	DefaultMaxPages = 2
	DefaultMaxChars = 3000
)

// Library resolves publication PDFs stored in one directory. Files are named
// by 1-based row number: record 0 is "1_<anything>.pdf".
type Library struct {
	dir      string
	maxPages int
	maxChars int
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:      dir,
		maxPages: DefaultMaxPages,
		maxChars: DefaultMaxChars,
	}
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// Find returns the PDF path for a record ID, or "" when none exists.
// When several files match, the lexically first is used.
func (l *Library) Find(id int) (string, error) {
	if l.dir == "" {
		return "", fmt.Errorf("pdf directory not configured")
	}
	if id < 0 {
		return "", nil
	}

	pattern := filepath.Join(l.dir, strconv.Itoa(id+1)+"_*.pdf")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("searching pdfs: %w", err)
	}

	var files []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return "", nil
	}
	sort.Strings(files)
	return files[0], nil
}

// TextFor returns abstract-like text from the record's PDF.
// A record without a PDF yields "" and a nil error.
func (l *Library) TextFor(rec publication.Record) (string, error) {
	path, err := l.Find(rec.ID)
	if err != nil || path == "" {
		return "", err
	}

	text, err := ExtractText(path, l.maxPages)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}
	return ExtractAbstract(text, l.maxChars), nil
}
