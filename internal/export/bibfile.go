package export

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/spacebio/engine/internal/publication"
)

var (
	entryStartRegex = regexp.MustCompile(`@\w+\{([^,]+),`)
	urlFieldRegex   = regexp.MustCompile(`(?i)^\s*url\s*=\s*[\{"]([^\}"]+)[\}"]`)
)

// BibIndex indexes the entries of an existing .bib file.
type BibIndex struct {
	Keys map[string]bool   // citation keys present
	URLs map[string]string // normalised URL -> citation key
}

// NewBibIndex creates an empty index.
func NewBibIndex() *BibIndex {
	return &BibIndex{
		Keys: make(map[string]bool),
		URLs: make(map[string]string),
	}
}

// Has reports whether rec is already in the file. The source URL is matched
// first; the citation key is the fallback for records without one.
func (idx *BibIndex) Has(rec publication.Record) bool {
	if u := normalizeURL(rec.SourceURL); u != "" {
		if _, ok := idx.URLs[u]; ok {
			return true
		}
	}
	return idx.Keys[CitationKey(rec)]
}

// add records rec as present.
func (idx *BibIndex) add(rec publication.Record) {
	key := CitationKey(rec)
	idx.Keys[key] = true
	if u := normalizeURL(rec.SourceURL); u != "" {
		idx.URLs[u] = key
	}
}

// ParseBibFile builds an index from an existing .bib file.
// A missing file yields an empty index.
func ParseBibFile(path string) (*BibIndex, error) {
	idx := NewBibIndex()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var currentKey string
	for scanner.Scan() {
		line := scanner.Text()

		if m := entryStartRegex.FindStringSubmatch(line); len(m) > 1 {
			currentKey = strings.TrimSpace(m[1])
			idx.Keys[currentKey] = true
		}
		if m := urlFieldRegex.FindStringSubmatch(line); len(m) > 1 && currentKey != "" {
			if u := normalizeURL(m[1]); u != "" {
				idx.URLs[u] = currentKey
			}
		}
	}
	return idx, scanner.Err()
}

// normalizeURL lowercases a URL and drops its scheme, "www." and trailing
// slash so trivially different spellings match.
func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" || u == publication.NotSpecified || u == "n/a" {
		return ""
	}
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

// AppendResult reports what AppendToBibFile did.
type AppendResult struct {
	Added   []string `json:"added"`   // citation keys written
	Skipped []string `json:"skipped"` // citation keys already present
}

// AppendToBibFile appends structured citations for recs to path, skipping
// records the file already contains. The file is created if needed.
func AppendToBibFile(path string, recs []publication.Record) (*AppendResult, error) {
	idx, err := ParseBibFile(path)
	if err != nil {
		return nil, err
	}

	result := &AppendResult{Added: []string{}, Skipped: []string{}}
	var b strings.Builder
	for _, rec := range recs {
		key := CitationKey(rec)
		if idx.Has(rec) {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		b.WriteString("\n")
		b.WriteString(formatStructured(rec))
		b.WriteString("\n")
		idx.add(rec)
		result.Added = append(result.Added, key)
	}
	if b.Len() == 0 {
		return result, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, err := file.WriteString(b.String()); err != nil {
		return nil, err
	}
	return result, nil
}
