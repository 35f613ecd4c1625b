// Package export formats publication records as citations.
package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spacebio/engine/internal/publication"
)

// Archive is the venue credited in every citation.
const Archive = "NASA Space Biology Archive"

// ErrUnknownStyle is returned for an unrecognised citation style.
var ErrUnknownStyle = errors.New("unknown citation style")

// Style is a citation output format.
type Style string

const (
	// StyleAcademic is an APA 7 like reference line.
	StyleAcademic Style = "academic"
	// StyleStructured is a BibTeX @article entry.
	StyleStructured Style = "structured"
	// StylePlain is a short human-readable line.
	StylePlain Style = "plain"
)

// Styles lists the supported styles in display order.
var Styles = []Style{StyleAcademic, StyleStructured, StylePlain}

// keyTitleRunes is how much of the title feeds a structured citation key.
const keyTitleRunes = 20

// ParseStyle parses a style name. The format names apa7, bibtex
// and text are accepted as aliases.
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "academic", "apa", "apa7":
		return StyleAcademic, nil
	case "structured", "bibtex", "bib":
		return StyleStructured, nil
	case "plain", "text":
		return StylePlain, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStyle, s)
	}
}

// Format renders rec in the given style. Missing fields are written as
// "not specified". Output depends only on rec and style.
func Format(rec publication.Record, style Style) (string, error) {
	switch style {
	case StyleAcademic:
		return formatAcademic(rec), nil
	case StyleStructured:
		return formatStructured(rec), nil
	case StylePlain:
		return formatPlain(rec), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStyle, string(style))
	}
}

// FormatAll renders records in order, separated by blank lines for
// structured output and newlines otherwise.
func FormatAll(recs []publication.Record, style Style) (string, error) {
	entries := make([]string, 0, len(recs))
	for _, rec := range recs {
		s, err := Format(rec, style)
		if err != nil {
			return "", err
		}
		entries = append(entries, s)
	}
	sep := "\n"
	if style == StyleStructured {
		sep = "\n\n"
	}
	return strings.Join(entries, sep), nil
}

func formatAcademic(rec publication.Record) string {
	return fmt.Sprintf("%s (%s). %s. %s. %s",
		rec.AuthorsOrPlaceholder(),
		rec.Year,
		rec.TitleOrPlaceholder(),
		Archive,
		rec.SourceURLOrPlaceholder(),
	)
}

func formatPlain(rec publication.Record) string {
	return fmt.Sprintf("%s. \"%s\". %s.",
		rec.AuthorsOrPlaceholder(),
		rec.TitleOrPlaceholder(),
		rec.Year,
	)
}

func formatStructured(rec publication.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "@article{%s,\n", CitationKey(rec))
	fmt.Fprintf(&b, "  title = {%s},\n", escapeLatex(rec.TitleOrPlaceholder()))
	fmt.Fprintf(&b, "  author = {%s},\n", formatAuthors(rec.AuthorsOrPlaceholder()))
	fmt.Fprintf(&b, "  year = {%s},\n", rec.Year)
	fmt.Fprintf(&b, "  journal = {%s},\n", Archive)
	fmt.Fprintf(&b, "  url = {%s}\n", escapeBraces(rec.SourceURLOrPlaceholder()))
	b.WriteString("}")

	return b.String()
}

// CitationKey derives the structured citation key: the first 20 characters
// of the title with everything but ASCII letters and digits removed,
// followed by the year ("nd" when unknown). An empty result uses "untitled".
func CitationKey(rec publication.Record) string {
	title := []rune(strings.TrimSpace(rec.Title))
	if len(title) > keyTitleRunes {
		title = title[:keyTitleRunes]
	}

	var b strings.Builder
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" {
		slug = "untitled"
	}

	if rec.Year.Known() {
		return fmt.Sprintf("%s%d", slug, int(rec.Year))
	}
	return slug + "nd"
}

// formatAuthors converts the scraped comma-separated author list into
// BibTeX's "A and B" form.
func formatAuthors(authors string) string {
	if authors == publication.NotSpecified {
		return authors
	}
	parts := strings.Split(authors, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, escapeLatex(p))
		}
	}
	if len(names) == 0 {
		return publication.NotSpecified
	}
	return strings.Join(names, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\textbackslash{}`,
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}

// escapeBraces keeps a URL from closing its BibTeX field early.
func escapeBraces(s string) string {
	return strings.NewReplacer("{", `\{`, "}", `\}`).Replace(s)
}
