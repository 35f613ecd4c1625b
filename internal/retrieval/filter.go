// Package retrieval runs the search pipeline: rank the corpus against a
// query, filter the ranked results, and assemble them into prompt context.
package retrieval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spacebio/engine/internal/corpus"
	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/semantic"
)

// Result is a record paired with its similarity score.
type Result struct {
	publication.Record
	Score float64 `json:"score"`
}

// resultsFromHits resolves ranker hits against the corpus.
func resultsFromHits(c *corpus.Corpus, hits []semantic.Hit) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		rec, ok := c.Record(h.Index)
		if !ok {
			continue
		}
		results = append(results, Result{Record: rec, Score: h.Score})
	}
	return results
}

// Predicate decides whether a result survives filtering.
type Predicate func(Result) bool

// Filter returns the results accepted by pred, in their original order.
// Scores are never changed. A nil predicate accepts everything.
func Filter(results []Result, pred Predicate) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if pred == nil || pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// All accepts a result when every predicate does.
func All(preds ...Predicate) Predicate {
	return func(r Result) bool {
		for _, p := range preds {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// YearIn accepts results published in one of years. With no years it accepts
// everything. Records with an unknown year never match a non-empty set.
func YearIn(years ...publication.Year) Predicate {
	if len(years) == 0 {
		return All()
	}
	set := make(map[publication.Year]bool, len(years))
	for _, y := range years {
		set[y] = true
	}
	return func(r Result) bool {
		return r.Year.Known() && set[r.Year]
	}
}

// YearRange accepts results published between from and to inclusive.
// A zero bound is open. Unknown years only match a fully open range.
func YearRange(from, to publication.Year) Predicate {
	if from == 0 && to == 0 {
		return All()
	}
	return func(r Result) bool {
		if !r.Year.Known() {
			return false
		}
		if from != 0 && r.Year < from {
			return false
		}
		if to != 0 && r.Year > to {
			return false
		}
		return true
	}
}

// MinScore accepts results scoring at least threshold.
func MinScore(threshold float64) Predicate {
	return func(r Result) bool {
		return r.Score >= threshold
	}
}

// ParseYearSpec parses a year filter expression:
//
//	""           no filter
//	"2024"       a single year
//	"2021,2023"  a set of years
//	"2018:2021"  an inclusive range; either bound may be omitted
func ParseYearSpec(spec string) (Predicate, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return All(), nil
	}

	if from, to, ok := strings.Cut(spec, ":"); ok {
		lo, err := parseYearBound(from)
		if err != nil {
			return nil, err
		}
		hi, err := parseYearBound(to)
		if err != nil {
			return nil, err
		}
		if lo != 0 && hi != 0 && lo > hi {
			return nil, fmt.Errorf("invalid year range %q: start after end", spec)
		}
		return YearRange(lo, hi), nil
	}

	var years []publication.Year
	for _, part := range strings.Split(spec, ",") {
		y, err := parseYear(part)
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return YearIn(years...), nil
}

// Years returns the distinct known years in results, ascending.
func Years(results []Result) []publication.Year {
	seen := make(map[publication.Year]bool)
	var years []publication.Year
	for _, r := range results {
		if r.Year.Known() && !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Slice(years, func(i, j int) bool { return years[i] < years[j] })
	return years
}

func parseYearBound(s string) (publication.Year, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return parseYear(s)
}

func parseYear(s string) (publication.Year, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return publication.Year(n), nil
}
