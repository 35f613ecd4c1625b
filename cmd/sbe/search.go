package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spacebio/engine/internal/retrieval"
)

var (
	searchLimit    int
	searchYears    string
	searchMinScore float64
	searchAbstract bool
	similarLimit   int
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(similarCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "Number of papers to rank (default: search.top_k)")
	searchCmd.Flags().StringVarP(&searchYears, "year", "y", "", `Keep only these years: "2024", "2021,2023" or "2018:2021"`)
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "Drop results scoring below this similarity")
	searchCmd.Flags().BoolVar(&searchAbstract, "abstract", false, "Include abstracts in the output")

	similarCmd.Flags().IntVarP(&similarLimit, "limit", "k", 0, "Number of related papers (default: search.top_k)")
}

// SearchResult is the response for the search command.
type SearchResult struct {
	Status  retrieval.Status `json:"status"`
	Query   string           `json:"query"`
	Results []PaperResult    `json:"results"`
	Total   int              `json:"total"`
	Message string           `json:"message,omitempty"`
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search publications by meaning",
	Long: `Search publications by semantic similarity to a free-text query.

The corpus is ranked by cosine similarity, the top results are kept, and
year or score filters are then applied to them. Filters never pull in
papers from outside the ranked top results.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	filter, err := retrieval.ParseYearSpec(searchYears)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if searchMinScore != 0 {
		filter = retrieval.All(filter, retrieval.MinScore(searchMinScore))
	}

	cfg := mustLoadConfig()
	svc := mustNewSearchService(ctx, cfg, newCLILogger())

	resp, err := svc.Search(ctx, retrieval.SearchRequest{Query: args[0], K: searchLimit, Filter: filter})
	if err != nil {
		exitWithCorpusError(err)
	}

	results := buildPaperResults(resp.Results, searchAbstract)
	if humanOutput {
		if resp.Status != retrieval.StatusOK {
			fmt.Println(resp.Message)
		} else {
			fmt.Printf("Search: %q\n", strings.TrimSpace(resp.Query))
			fmt.Printf("Found %d papers\n\n", len(results))
			printPaperResultsHuman(results)
		}
	} else {
		outputJSON(SearchResult{
			Status:  resp.Status,
			Query:   resp.Query,
			Results: results,
			Total:   len(results),
			Message: resp.Message,
		})
	}
	return statusExit(resp.Status)
}

// statusExit exits with the code for a non-ok request status. The response
// has already been written.
func statusExit(status retrieval.Status) error {
	switch status {
	case retrieval.StatusEmptyQuery:
		os.Exit(ExitError)
	case retrieval.StatusUnavailable:
		os.Exit(ExitUnavailable)
	}
	return nil
}

// SimilarResult is the response for the similar command.
type SimilarResult struct {
	ID      int           `json:"id"`
	Title   string        `json:"title"`
	Results []PaperResult `json:"results"`
	Total   int           `json:"total"`
}

var similarCmd = &cobra.Command{
	Use:   "similar <paper-id>",
	Short: "Find publications related to a paper",
	Long: `Find publications whose embeddings are closest to the given paper's.
The paper itself is excluded. No embedding service is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := mustParseID(args[0])

	cfg := mustLoadConfig()
	svc := mustNewService(cfg, newCLILogger())

	rec, err := svc.Paper(ctx, id)
	if err != nil {
		exitWithCorpusError(err)
	}
	results, err := svc.Similar(ctx, id, similarLimit)
	if err != nil {
		exitWithCorpusError(err)
	}

	out := buildPaperResults(results, false)
	if humanOutput {
		fmt.Printf("Papers related to #%d %s\n\n", id, truncateString(rec.TitleOrPlaceholder(), SearchTitleMaxLen))
		printPaperResultsHuman(out)
	} else {
		outputJSON(SimilarResult{ID: id, Title: rec.Title, Results: out, Total: len(out)})
	}
	return nil
}

// mustParseID parses a paper ID argument, exits on error.
func mustParseID(s string) int {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id < 0 {
		exitWithError(ExitError, "invalid paper id %q: want a non-negative integer", s)
	}
	return id
}
