package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spacebio/engine/internal/publication"
)

// Context budgets used for chat prompts.
const (
	DefaultContextChars      = 4000
	DefaultContextFieldChars = 800
)

// Truncation markers.
const (
	// FieldTruncationMarker follows an abstract that was cut.
	FieldTruncationMarker = "..."

	// MoreAvailableMarker ends assembled context that was cut.
	MoreAvailableMarker = "\n...(more papers available)"

	// ShortMoreAvailableMarker replaces MoreAvailableMarker when the budget
	// is too small to hold it.
	ShortMoreAvailableMarker = "…"
)

// Assemble formats results into numbered paper blocks for a prompt.
//
// Each abstract is cut to maxFieldChars characters followed by
// FieldTruncationMarker. When the whole text exceeds maxTotalChars it is cut
// so that the text plus MoreAvailableMarker is exactly maxTotalChars long.
// Lengths are counted in Unicode code points. A budget of zero or less means
// unlimited. If maxTotalChars is shorter than MoreAvailableMarker, the text is
// cut to end with ShortMoreAvailableMarker instead.
func Assemble(results []Result, maxTotalChars, maxFieldChars int) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[Paper %d]\nTitle: %s\nAuthors: %s\nYear: %s\nAbstract: %s\n\n",
			i+1,
			r.TitleOrPlaceholder(),
			r.AuthorsOrPlaceholder(),
			r.Year,
			abstractField(r.Abstract, maxFieldChars),
		)
	}
	return truncateTotal(b.String(), maxTotalChars)
}

func abstractField(abstract string, maxChars int) string {
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		return publication.NotSpecified
	}
	if maxChars <= 0 || utf8.RuneCountInString(abstract) <= maxChars {
		return abstract
	}
	return string([]rune(abstract)[:maxChars]) + FieldTruncationMarker
}

func truncateTotal(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	marker := MoreAvailableMarker
	if maxChars < utf8.RuneCountInString(marker) {
		marker = ShortMoreAvailableMarker
	}
	keep := maxChars - utf8.RuneCountInString(marker)
	return string([]rune(text)[:keep]) + marker
}
