package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/retrieval"
)

// Constants for output formatting.
const (
	SearchTitleMaxLen = 70 // Used in search result summaries
	ListTitleMaxLen   = 60 // Used in explore list output

	TextWrapWidth = 72 // Standard text wrap width
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PaperResult is a paper in search and similar-paper output.
type PaperResult struct {
	ID        int              `json:"id"`
	Title     string           `json:"title"`
	Authors   string           `json:"authors"`
	Year      publication.Year `json:"year"`
	Score     float64          `json:"score"`
	SourceURL string           `json:"source_url,omitempty"`
	Abstract  string           `json:"abstract,omitempty"`
}

// buildPaperResults converts ranked results for output.
func buildPaperResults(results []retrieval.Result, includeAbstract bool) []PaperResult {
	out := make([]PaperResult, 0, len(results))
	for _, r := range results {
		p := PaperResult{
			ID:        r.ID,
			Title:     r.Title,
			Authors:   r.AuthorsOrPlaceholder(),
			Year:      r.Year,
			Score:     r.Score,
			SourceURL: r.SourceURL,
		}
		if includeAbstract {
			p.Abstract = r.Abstract
		}
		out = append(out, p)
	}
	return out
}

// printPaperResultsHuman prints ranked papers in human-readable format.
func printPaperResultsHuman(results []PaperResult) {
	for i, r := range results {
		fmt.Printf("%d. [%.3f] #%d %s\n", i+1, r.Score, r.ID, truncateString(r.Title, SearchTitleMaxLen))
		fmt.Printf("   %s (%s)\n", truncateString(r.Authors, SearchTitleMaxLen), r.Year)
		if r.Abstract != "" {
			fmt.Printf("   %s\n", wrapText(truncateString(r.Abstract, 300), TextWrapWidth, "   "))
		}
		if r.SourceURL != "" {
			fmt.Printf("   %s\n", r.SourceURL)
		}
		fmt.Println()
	}
}

// printRecordHuman prints one publication with all its fields.
func printRecordHuman(rec publication.Record) {
	fmt.Printf("#%d %s\n", rec.ID, rec.TitleOrPlaceholder())
	fmt.Printf("Authors: %s\n", rec.AuthorsOrPlaceholder())
	fmt.Printf("Year: %s\n", rec.Year)
	fmt.Printf("Source: %s\n", rec.SourceURLOrPlaceholder())
	if rec.Abstract != "" {
		fmt.Printf("\n%s\n", wrapText(rec.Abstract, TextWrapWidth, ""))
	}
}

// truncateString shortens s to maxLen runes, ending in "...".
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// wrapText wraps text at width, prefixing continuation lines with indent.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	words := strings.Fields(text)
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n"+indent)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
