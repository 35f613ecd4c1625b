package topics

import (
	"reflect"
	"testing"

	"github.com/spacebio/engine/internal/publication"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"lowercases and splits", "Bone-Loss, in MICE!", []string{"bone", "loss", "mice"}},
		{"drops stopwords and boilerplate", "The results of this study were found", []string{}},
		{"drops single letters", "T cell x ray", []string{"cell", "ray"}},
		{"keeps digits", "ISS 2021 mission", []string{"iss", "2021", "mission"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tokenize(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDocuments(t *testing.T) {
	recs := []publication.Record{{Title: "Roots", Abstract: "grow"}, {Title: "Bone"}}
	got := Documents(recs)
	want := []string{"Roots grow", "Bone "}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Documents() = %q, want %q", got, want)
	}
}

func TestTopTerms(t *testing.T) {
	docs := []string{
		"bone loss in mice",
		"bone loss after spaceflight",
		"the bone loss of astronauts",
		"root growth in plants",
		"plants and root growth",
	}

	got := TopTerms(docs, Options{MinDF: 2, MaxDF: 1, TopN: 10})
	want := []Term{
		{Term: "bone", Count: 3, DocFreq: 3},
		{Term: "bone loss", Count: 3, DocFreq: 3},
		{Term: "loss", Count: 3, DocFreq: 3},
		{Term: "growth", Count: 2, DocFreq: 2},
		{Term: "plants", Count: 2, DocFreq: 2},
		{Term: "root", Count: 2, DocFreq: 2},
		{Term: "root growth", Count: 2, DocFreq: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopTerms() =\n%v\nwant\n%v", got, want)
	}
}

func TestTopTerms_DocumentFrequencyBounds(t *testing.T) {
	docs := []string{
		"microgravity bone",
		"microgravity bone",
		"microgravity roots",
		"microgravity roots",
	}

	// microgravity is in every document, above the 0.85 share.
	got := TopTerms(docs, Options{MinDF: 2, MaxDF: 0.85})
	want := []string{"bone", "microgravity bone", "microgravity roots", "roots"}
	var terms []string
	for _, term := range got {
		terms = append(terms, term.Term)
	}
	if !reflect.DeepEqual(terms, want) {
		t.Errorf("TopTerms() terms = %v, want %v", terms, want)
	}

	if got := TopTerms(docs, Options{MinDF: 3, MaxDF: 0.85}); len(got) != 0 {
		t.Errorf("min document frequency not applied: %v", got)
	}
}

func TestTopTerms_BigramsSkipStopwords(t *testing.T) {
	docs := []string{"loss of bone", "loss of bone", "loss of bone"}
	got := TopTerms(docs, Options{MinDF: 1, MaxDF: 1})

	found := false
	for _, term := range got {
		if term.Term == "loss bone" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected bigram formed across removed stopword, got %v", got)
	}
}

func TestTopTerms_TopN(t *testing.T) {
	docs := []string{"alpha beta gamma delta", "alpha beta gamma delta", "alpha beta gamma delta"}
	if got := TopTerms(docs, Options{MinDF: 1, MaxDF: 1, TopN: 2}); len(got) != 2 {
		t.Errorf("TopTerms() returned %d terms, want 2", len(got))
	}
	if got := TopTerms(nil, Options{}); len(got) != 0 {
		t.Errorf("TopTerms(nil) = %v", got)
	}
}
