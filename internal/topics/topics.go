// Package topics finds the most frequent terms across the corpus.
package topics

import (
	"sort"
	"strings"
	"unicode"

	"github.com/spacebio/engine/internal/publication"
)

// Defaults for Options.
const (
	DefaultMinDF = 3
	DefaultMaxDF = 0.85
	DefaultTopN  = 25
)

// Options controls term counting.
type Options struct {
	MinDF int     // drop terms found in fewer documents
	MaxDF float64 // drop terms found in more than this share of documents
	TopN  int     // terms returned
}

func (o *Options) applyDefaults() {
	if o.MinDF <= 0 {
		o.MinDF = DefaultMinDF
	}
	if o.MaxDF <= 0 || o.MaxDF > 1 {
		o.MaxDF = DefaultMaxDF
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
}

// Term is a unigram or bigram with its corpus counts.
type Term struct {
	Term    string `json:"term"`
	Count   int    `json:"count"`    // total occurrences
	DocFreq int    `json:"doc_freq"` // documents containing the term
}

// Documents returns the text analysed for each record: title and abstract.
func Documents(records []publication.Record) []string {
	docs := make([]string, len(records))
	for i, rec := range records {
		docs[i] = rec.Title + " " + rec.Abstract
	}
	return docs
}

// TopTerms counts unigrams and bigrams over docs and returns the most
// frequent, ordered by count descending and then alphabetically. Stopwords
// are removed before bigrams are formed.
func TopTerms(docs []string, opts Options) []Term {
	opts.applyDefaults()

	counts := make(map[string]int)
	docFreq := make(map[string]int)

	for _, doc := range docs {
		tokens := Tokenize(doc)
		seen := make(map[string]bool)
		add := func(term string) {
			counts[term]++
			if !seen[term] {
				seen[term] = true
				docFreq[term]++
			}
		}
		for i, tok := range tokens {
			add(tok)
			if i > 0 {
				add(tokens[i-1] + " " + tok)
			}
		}
	}

	maxDocs := opts.MaxDF * float64(len(docs))
	terms := make([]Term, 0, len(counts))
	for term, n := range counts {
		df := docFreq[term]
		if df < opts.MinDF || float64(df) > maxDocs {
			continue
		}
		terms = append(terms, Term{Term: term, Count: n, DocFreq: df})
	}

	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	if len(terms) > opts.TopN {
		terms = terms[:opts.TopN]
	}
	return terms
}

// Tokenize lowercases text and splits it into words of two or more letters
// or digits, dropping stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
