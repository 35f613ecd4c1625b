// Package publication defines the core domain types for ingested publications.
package publication

import (
	"math"
	"strconv"
	"strings"
)

// NotSpecified is rendered wherever a field has no value.
const NotSpecified = "not specified"

// Record represents one ingested publication.
// Records are immutable once the corpus has been loaded.
type Record struct {
	// Identity
	ID int `json:"id"` // Row position in the record table (0-based)

	// Metadata
	Title     string `json:"title"`
	Authors   string `json:"authors"` // Comma-separated author list as scraped
	Year      Year   `json:"year"`
	Abstract  string `json:"abstract"`
	SourceURL string `json:"source_url"`
}

// Year is a publication year. The zero value means unknown.
type Year int

// Unknown is the zero Year.
const Unknown Year = 0

// Known reports whether the year was recorded.
func (y Year) Known() bool {
	return y > 0
}

// String returns the year digits, or NotSpecified when unknown.
func (y Year) String() string {
	if !y.Known() {
		return NotSpecified
	}
	return strconv.Itoa(int(y))
}

// ParseYear parses a year cell from the record table.
// Accepts "2021" and "2021.0" (tables written with missing values store years
// as floats). Blank, "N/A" and anything unparseable yield Unknown.
func ParseYear(s string) Year {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	if n, err := strconv.Atoi(s); err == nil {
		return clampYear(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Unknown
	}
	return clampYear(int(f))
}

func clampYear(n int) Year {
	if n <= 0 || n > 9999 {
		return Unknown
	}
	return Year(n)
}

// AuthorsOrPlaceholder returns the author list, or NotSpecified.
func (r Record) AuthorsOrPlaceholder() string {
	return orPlaceholder(r.Authors)
}

// TitleOrPlaceholder returns the title, or NotSpecified.
func (r Record) TitleOrPlaceholder() string {
	return orPlaceholder(r.Title)
}

// SourceURLOrPlaceholder returns the source URL, or NotSpecified.
func (r Record) SourceURLOrPlaceholder() string {
	return orPlaceholder(r.SourceURL)
}

// EmbeddingText returns the text embedded for this record: the title followed
// by the abstract, or just the title when there is no abstract.
func (r Record) EmbeddingText() string {
	title := strings.TrimSpace(r.Title)
	abstract := strings.TrimSpace(r.Abstract)
	if abstract == "" {
		return title
	}
	return title + ". " + abstract
}

// orPlaceholder treats blank values and the scraper's "N/A" marker as missing.
func orPlaceholder(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "n/a") {
		return NotSpecified
	}
	return s
}
