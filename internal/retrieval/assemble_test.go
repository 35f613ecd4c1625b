package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/spacebio/engine/internal/publication"
)

func TestAssemble_Block(t *testing.T) {
	results := []Result{
		{Record: publication.Record{Title: "Bone loss", Authors: "Smith J", Year: 2021, Abstract: "Mice lost bone."}},
		{Record: publication.Record{Title: "Roots", Authors: "N/A"}},
	}

	got := Assemble(results, 0, 0)
	want := "[Paper 1]\nTitle: Bone loss\nAuthors: Smith J\nYear: 2021\nAbstract: Mice lost bone.\n\n" +
		"[Paper 2]\nTitle: Roots\nAuthors: not specified\nYear: not specified\nAbstract: not specified\n\n"
	if got != want {
		t.Errorf("Assemble =\n%q\nwant\n%q", got, want)
	}
}

func TestAssemble_Empty(t *testing.T) {
	if got := Assemble(nil, 100, 10); got != "" {
		t.Errorf("Assemble(nil) = %q, want empty", got)
	}
}

func TestAssemble_FieldTruncation(t *testing.T) {
	abstract := strings.Repeat("a", 10000)
	results := []Result{{Record: publication.Record{Title: "Long", Abstract: abstract}}}

	got := Assemble(results, 100000, 2500)

	start := strings.Index(got, "Abstract: ") + len("Abstract: ")
	end := strings.LastIndex(got, "\n\n")
	segment := got[start:end]

	if !strings.HasSuffix(segment, FieldTruncationMarker) {
		t.Fatalf("abstract segment should end with %q", FieldTruncationMarker)
	}
	body := strings.TrimSuffix(segment, FieldTruncationMarker)
	if n := utf8.RuneCountInString(body); n != 2500 {
		t.Errorf("abstract segment has %d characters before the marker, want 2500", n)
	}
}

func TestAssemble_FieldAtLimitNotMarked(t *testing.T) {
	results := []Result{{Record: publication.Record{Title: "T", Abstract: "abcde"}}}
	got := Assemble(results, 0, 5)
	if !strings.Contains(got, "Abstract: abcde\n") {
		t.Errorf("abstract at the limit should be unchanged: %q", got)
	}
}

func TestAssemble_TotalTruncation(t *testing.T) {
	var results []Result
	for i := 0; i < 10; i++ {
		results = append(results, Result{Record: publication.Record{
			Title:    "Spaceflight and the immune system",
			Authors:  "Müller K, Østergaard L",
			Year:     2020,
			Abstract: strings.Repeat("Ω microgravity ", 60),
		}})
	}

	for _, budget := range []int{60, 500, 1000, 4000} {
		got := Assemble(results, budget, 800)
		if n := utf8.RuneCountInString(got); n != budget {
			t.Errorf("budget %d: output has %d characters, want exactly %d", budget, n, budget)
		}
		if !strings.HasSuffix(got, MoreAvailableMarker) {
			t.Errorf("budget %d: output should end with the more-available marker", budget)
		}
	}
}

func TestAssemble_FitsWithoutMarker(t *testing.T) {
	results := []Result{{Record: publication.Record{Title: "T", Abstract: "short"}}}
	full := Assemble(results, 0, 0)

	got := Assemble(results, utf8.RuneCountInString(full), 0)
	if got != full {
		t.Errorf("text exactly at budget should not be cut")
	}
	if strings.Contains(got, MoreAvailableMarker) {
		t.Error("marker should not appear when nothing was cut")
	}
}

func TestAssemble_BudgetSmallerThanMarker(t *testing.T) {
	results := []Result{{Record: publication.Record{Title: "T", Abstract: strings.Repeat("x", 100)}}}
	tests := []struct {
		budget int
		want   string
	}{
		{1, ShortMoreAvailableMarker},
		{5, "[Pap" + ShortMoreAvailableMarker},
		{utf8.RuneCountInString(MoreAvailableMarker) - 1, "[Paper 1]\nTitle: T\nAuthor" + ShortMoreAvailableMarker},
		{utf8.RuneCountInString(MoreAvailableMarker), MoreAvailableMarker},
	}
	for _, tt := range tests {
		got := Assemble(results, tt.budget, 0)
		if got != tt.want {
			t.Errorf("budget %d: got %q, want %q", tt.budget, got, tt.want)
		}
		if n := utf8.RuneCountInString(got); n != tt.budget {
			t.Errorf("budget %d: output has %d characters", tt.budget, n)
		}
	}
}

func TestAssemble_NeverExceedsBudget(t *testing.T) {
	results := []Result{
		{Record: publication.Record{Title: strings.Repeat("标题", 50), Abstract: strings.Repeat("摘要", 900)}},
		{Record: publication.Record{Title: "Second", Abstract: strings.Repeat("z", 3000)}},
	}
	for budget := 1; budget < 3000; budget += 97 {
		got := Assemble(results, budget, 800)
		if n := utf8.RuneCountInString(got); n > budget {
			t.Fatalf("budget %d: output has %d characters", budget, n)
		}
	}
}
