package publication

import "testing"

func TestParseYear(t *testing.T) {
	tests := []struct {
		input    string
		expected Year
	}{
		{"2021", 2021},
		{" 2019 ", 2019},
		{"2021.0", 2021},
		{"2021.5", Unknown},
		{"", Unknown},
		{"N/A", Unknown},
		{"nan", Unknown},
		{"-4", Unknown},
		{"unknown", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseYear(tt.input); got != tt.expected {
				t.Errorf("ParseYear(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestYear_String(t *testing.T) {
	if got := Year(2020).String(); got != "2020" {
		t.Errorf("Year(2020).String() = %q", got)
	}
	if got := Unknown.String(); got != NotSpecified {
		t.Errorf("Unknown.String() = %q, want %q", got, NotSpecified)
	}
}

func TestRecord_Placeholders(t *testing.T) {
	r := Record{Title: "  ", Authors: "N/A", SourceURL: ""}

	if got := r.TitleOrPlaceholder(); got != NotSpecified {
		t.Errorf("TitleOrPlaceholder() = %q", got)
	}
	if got := r.AuthorsOrPlaceholder(); got != NotSpecified {
		t.Errorf("AuthorsOrPlaceholder() = %q", got)
	}
	if got := r.SourceURLOrPlaceholder(); got != NotSpecified {
		t.Errorf("SourceURLOrPlaceholder() = %q", got)
	}

	r = Record{Authors: "Smith J, Doe A"}
	if got := r.AuthorsOrPlaceholder(); got != "Smith J, Doe A" {
		t.Errorf("AuthorsOrPlaceholder() = %q", got)
	}
}

func TestRecord_EmbeddingText(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected string
	}{
		{
			name:     "title and abstract",
			record:   Record{Title: "Plants in orbit", Abstract: "We grew plants."},
			expected: "Plants in orbit. We grew plants.",
		},
		{
			name:     "title only",
			record:   Record{Title: "Plants in orbit", Abstract: "   "},
			expected: "Plants in orbit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.EmbeddingText(); got != tt.expected {
				t.Errorf("EmbeddingText() = %q, want %q", got, tt.expected)
			}
		})
	}
}
