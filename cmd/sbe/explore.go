package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spacebio/engine/internal/corpus"
	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/storage"
	"github.com/spacebio/engine/internal/topics"
)

var (
	exploreKeyword string
	exploreTitle   string
	exploreAuthor  string
	exploreFrom    int
	exploreTo      int
	exploreLimit   int

	topicsLimit int
	topicsMinDF int
	topicsMaxDF float64
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(rebuildCmd)

	exploreCmd.Flags().StringVarP(&exploreKeyword, "keyword", "q", "", "Keyword search over titles, abstracts and authors")
	exploreCmd.Flags().StringVar(&exploreTitle, "title", "", "Keyword search over titles only")
	exploreCmd.Flags().StringVarP(&exploreAuthor, "author", "a", "", "Author name (prefix match)")
	exploreCmd.Flags().IntVar(&exploreFrom, "from", 0, "Earliest publication year")
	exploreCmd.Flags().IntVar(&exploreTo, "to", 0, "Latest publication year")
	exploreCmd.Flags().IntVarP(&exploreLimit, "limit", "n", storage.DefaultListLimit, "Maximum number of papers")

	topicsCmd.Flags().IntVarP(&topicsLimit, "limit", "n", topics.DefaultTopN, "Number of terms")
	topicsCmd.Flags().IntVar(&topicsMinDF, "min-df", topics.DefaultMinDF, "Ignore terms found in fewer papers")
	topicsCmd.Flags().Float64Var(&topicsMaxDF, "max-df", topics.DefaultMaxDF, "Ignore terms found in more than this share of papers")
}

// StatsResult is the response for the stats command.
type StatsResult struct {
	*storage.Stats
	Dimensions int `json:"dimensions,omitempty"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	Long:  `Show the number of publications, the embedding dimension and the distribution of publication years.`,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	logger := newCLILogger()

	db := mustOpenPopulatedDatabase(cfg)
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		exitWithError(ExitError, "computing statistics: %v", err)
	}

	result := StatsResult{Stats: stats}
	if vectors, err := corpus.ReadVectors(cfg.VectorsPath()); err != nil {
		logger.Warn("embedding matrix unavailable", zap.Error(err))
	} else if len(vectors) > 0 {
		result.Dimensions = len(vectors[0])
	}

	if humanOutput {
		fmt.Printf("Publications: %d\n", stats.Total)
		fmt.Printf("With abstract: %d\n", stats.WithAbstract)
		if result.Dimensions > 0 {
			fmt.Printf("Embedding dimensions: %d\n", result.Dimensions)
		}
		if len(stats.Years) > 0 {
			fmt.Printf("Years: %d-%d (%d unknown)\n\n", stats.YearFrom, stats.YearTo, stats.UnknownYear)
			printYearHistogram(stats.Years)
		}
	} else {
		outputJSON(result)
	}
	return nil
}

// histogramWidth is the longest bar printed by printYearHistogram.
const histogramWidth = 40

func printYearHistogram(years []storage.YearCount) {
	peak := 0
	for _, y := range years {
		if y.Count > peak {
			peak = y.Count
		}
	}
	for _, y := range years {
		bar := y.Count * histogramWidth / peak
		if bar == 0 {
			bar = 1
		}
		fmt.Printf("  %d %s %d\n", y.Year, strings.Repeat("#", bar), y.Count)
	}
}

// ExploreResult is the response for the explore command.
type ExploreResult struct {
	Papers []publication.Record `json:"papers"`
	Total  int                  `json:"total"`
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Browse publications by keyword, author or year",
	Long: `Browse the publication table. Without filters, the first papers in table
order are listed. Keyword filters use full-text search and are ordered by
relevance.`,
	Args: cobra.NoArgs,
	RunE: runExplore,
}

func runExplore(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenPopulatedDatabase(cfg)
	defer db.Close()

	papers, err := db.SearchWithFilters(storage.SearchFilters{
		Keyword:  exploreKeyword,
		Title:    exploreTitle,
		Author:   exploreAuthor,
		YearFrom: exploreFrom,
		YearTo:   exploreTo,
	}, exploreLimit)
	if err != nil {
		exitWithError(ExitError, "searching publications: %v", err)
	}

	if humanOutput {
		fmt.Printf("%d papers\n\n", len(papers))
		for _, p := range papers {
			fmt.Printf("%5d  %-4s  %s\n", p.ID, yearShort(p.Year), truncateString(p.Title, ListTitleMaxLen))
		}
	} else {
		outputJSON(ExploreResult{Papers: papers, Total: len(papers)})
	}
	return nil
}

func yearShort(y publication.Year) string {
	if !y.Known() {
		return "-"
	}
	return y.String()
}

// TopicsResult is the response for the topics command.
type TopicsResult struct {
	Documents int           `json:"documents"`
	Terms     []topics.Term `json:"terms"`
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the most frequent terms in the corpus",
	Long: `List the most frequent words and two-word phrases across titles and
abstracts. Common English words and generic scientific words (study,
results, data, ...) are ignored, as are terms found in too few or too many
papers.`,
	Args: cobra.NoArgs,
	RunE: runTopics,
}

func runTopics(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	records := mustReadRecords(cfg)

	docs := topics.Documents(records)
	terms := topics.TopTerms(docs, topics.Options{MinDF: topicsMinDF, MaxDF: topicsMaxDF, TopN: topicsLimit})

	if humanOutput {
		fmt.Printf("Top %d terms across %d papers:\n\n", len(terms), len(docs))
		for i, t := range terms {
			fmt.Printf("%3d. %-30s %5d  (%d papers)\n", i+1, t.Term, t.Count, t.DocFreq)
		}
	} else {
		outputJSON(TopicsResult{Documents: len(docs), Terms: terms})
	}
	return nil
}

// RebuildResult is the response for the rebuild command.
type RebuildResult struct {
	Status       string `json:"status"`
	Publications int    `json:"publications"`
	Path         string `json:"path"`
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the explorer database from the publications table",
	Long: `Rebuild the SQLite database used by stats and explore from the
publications CSV. Use this after the table changes.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	records := mustReadRecords(cfg)

	db := mustOpenDatabase(cfg)
	defer db.Close()

	n, err := db.RebuildFromRecords(records)
	if err != nil {
		exitWithError(ExitError, "rebuilding database: %v", err)
	}

	if humanOutput {
		fmt.Printf("Rebuilt %s with %d publications\n", cfg.DBPath(), n)
	} else {
		outputJSON(RebuildResult{Status: "rebuilt", Publications: n, Path: cfg.DBPath()})
	}
	return nil
}
