package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spacebio/engine/internal/corpus"
	"github.com/spacebio/engine/internal/embedding"
	"github.com/spacebio/engine/internal/pdf"
	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/semantic"
	"github.com/spacebio/engine/internal/storage"
)

var (
	noProgress bool
	noPDF      bool
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexCheckCmd)

	indexBuildCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
	indexBuildCmd.Flags().BoolVar(&noPDF, "no-pdf", false, "Do not read local PDFs for records without an abstract")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the embedding matrix",
	Long:  `Commands for building and checking the embedding matrix the search ranks against.`,
}

// IndexBuildResult is the response for index build command.
type IndexBuildResult struct {
	Status          string  `json:"status"`
	RecordsEmbedded int     `json:"records_embedded"`
	TitleOnly       int     `json:"title_only"`
	PDFFallback     int     `json:"pdf_fallback"`
	Dimensions      int     `json:"dimensions"`
	DurationSeconds float64 `json:"duration_seconds"`
	Model           string  `json:"model"`
	VectorsPath     string  `json:"vectors_path"`
	VectorsBytes    int64   `json:"vectors_bytes"`
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed every publication and write the matrix",
	Long: `Embed "title. abstract" for every publication and write the vectors as a
2-D NumPy array, one row per table row. Vectors are scaled to unit length.

Records without an abstract are embedded by title, or by text read from
their PDF when data.pdf_dir is configured.

With the default Ollama provider, run 'ollama pull all-minilm:l6-v2' first.`,
	RunE: runIndexBuild,
}

// outputBuildResults outputs the build statistics in the appropriate format.
func outputBuildResults(stats *semantic.BuildStats, path string) {
	if humanOutput {
		fmt.Printf("\nBuild complete:\n")
		fmt.Printf("  Records embedded: %d\n", stats.RecordsEmbedded)
		fmt.Printf("  Title only: %d\n", stats.TitleOnly)
		fmt.Printf("  Text from PDF: %d\n", stats.PDFFallback)
		fmt.Printf("  Dimensions: %d\n", stats.Dimensions)
		fmt.Printf("  Time elapsed: %s\n", formatDuration(stats.Duration))
		fmt.Printf("  Matrix: %s (%s)\n", path, formatBytes(stats.VectorsBytes))
		fmt.Printf("  Model: %s\n", stats.Model)
	} else {
		outputJSON(IndexBuildResult{
			Status:          "complete",
			RecordsEmbedded: stats.RecordsEmbedded,
			TitleOnly:       stats.TitleOnly,
			PDFFallback:     stats.PDFFallback,
			Dimensions:      stats.Dimensions,
			DurationSeconds: stats.Duration.Seconds(),
			Model:           stats.Model,
			VectorsPath:     path,
			VectorsBytes:    stats.VectorsBytes,
		})
	}
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := mustLoadConfig()
	logger := newCLILogger()
	records := mustReadRecords(cfg)

	provider := mustNewProvider(cfg)
	mustValidateProvider(ctx, provider)

	builder := semantic.NewBuilder(provider, logger)
	if dir := cfg.PDFPath(); dir != "" && !noPDF {
		lib := pdf.NewLibrary(dir)
		builder.SetFallback(lib.TextFor)
		logger.Debug("pdf fallback enabled", zap.String("dir", lib.Dir()))
	}
	if !noProgress && humanOutput {
		builder.SetProgressReporter(semantic.ProgressFunc(printProgress))
		fmt.Fprintf(os.Stderr, "Embedding %d publications...\n", len(records))
	}

	vectors, stats, err := builder.Build(ctx, records)
	if err != nil {
		exitWithError(ExitUnavailable, "building embeddings: %v", err)
	}

	path := cfg.VectorsPath()
	size, err := corpus.WriteVectors(path, vectors)
	if err != nil {
		exitWithError(ExitError, "writing vectors: %v", err)
	}
	stats.VectorsBytes = size

	// Record what the matrix was built from so check can detect drift.
	db := mustOpenDatabase(cfg)
	defer db.Close()
	if _, err := db.RebuildFromRecords(records); err != nil {
		exitWithError(ExitError, "rebuilding database: %v", err)
	}
	err = db.SaveIndexMetadata(storage.IndexMetadata{
		ModelName:   stats.Model,
		Dimensions:  stats.Dimensions,
		Records:     len(records),
		RecordsHash: storage.RecordsHash(records),
		BuiltAt:     time.Now().UTC(),
	})
	if err != nil {
		exitWithError(ExitError, "saving index metadata: %v", err)
	}

	// Clear progress line if we were showing progress
	if humanOutput && !noProgress {
		fmt.Fprintf(os.Stderr, "\r%*s\r", progressLineClearWidth, "")
	}

	outputBuildResults(stats, path)
	return nil
}

// mustValidateProvider checks that the embedding backend is reachable and,
// for Ollama, that the model has been pulled.
func mustValidateProvider(ctx context.Context, provider embedding.Provider) {
	if hc, ok := provider.(embedding.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			exitWithError(ExitUnavailable, "embedding provider is not reachable: %v", err)
		}
	}

	ollama, ok := provider.(*embedding.OllamaProvider)
	if !ok {
		return
	}
	hasModel, err := ollama.HasModel(ctx)
	if err != nil {
		exitWithError(ExitError, "checking model availability: %v", err)
	}
	if !hasModel {
		exitWithError(ExitUnavailable, "embedding model %q not found\n\nRun 'ollama pull %s' to download it.", ollama.ModelName(), ollama.ModelName())
	}
}

// IndexCheckResult is the response for index check command.
type IndexCheckResult struct {
	Status         string `json:"status"`
	Records        int    `json:"records"`
	Vectors        int    `json:"vectors"`
	Dimensions     int    `json:"dimensions"`
	Model          string `json:"model,omitempty"`
	BuiltAt        string `json:"built_at,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the embedding matrix against the publications table",
	Long: `Check that the embedding matrix has one row per publication and was built
from the current publication text.

Exit codes: 3 when counts or shapes disagree, 7 when the table changed since
the last build.`,
	RunE: runIndexCheck,
}

// outputCheckResults outputs the index check results in the appropriate format.
func outputCheckResults(result IndexCheckResult, exitCode int) {
	if humanOutput {
		fmt.Printf("Embedding Matrix Status: %s\n\n", result.Status)
		fmt.Printf("  Publications: %d\n", result.Records)
		fmt.Printf("  Vectors: %d\n", result.Vectors)
		fmt.Printf("  Dimensions: %d\n", result.Dimensions)
		if result.Model != "" {
			fmt.Printf("  Model: %s\n", result.Model)
			fmt.Printf("  Built: %s\n", result.BuiltAt)
		}
		if result.Recommendation != "" {
			fmt.Printf("\n%s\n", result.Recommendation)
		}
	} else {
		outputJSON(result)
	}

	if exitCode != ExitSuccess {
		os.Exit(exitCode)
	}
}

func runIndexCheck(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	records := mustReadRecords(cfg)

	vectors, err := corpus.ReadVectors(cfg.VectorsPath())
	if err != nil {
		exitWithCorpusError(err)
	}

	result := IndexCheckResult{Records: len(records), Vectors: len(vectors)}
	if len(vectors) > 0 {
		result.Dimensions = len(vectors[0])
	}

	db := mustOpenDatabase(cfg)
	defer db.Close()
	meta, err := db.GetIndexMetadata()
	if err != nil {
		exitWithError(ExitError, "reading index metadata: %v", err)
	}
	if meta != nil {
		result.Model = meta.ModelName
		result.BuiltAt = meta.BuiltAt.Format(time.RFC3339)
	}

	status, code, advice := checkStatus(records, vectors, meta)
	result.Status = status
	result.Recommendation = advice
	outputCheckResults(result, code)
	return nil
}

// checkStatus compares the table with the matrix and the metadata recorded
// by the last build. Matrices built elsewhere have no metadata and are only
// checked for shape.
func checkStatus(records []publication.Record, vectors [][]float32, meta *storage.IndexMetadata) (string, int, string) {
	if len(records) != len(vectors) {
		return "mismatch", ExitDataIntegrity,
			fmt.Sprintf("The matrix has %d rows for %d publications. Run 'sbe index build'.", len(vectors), len(records))
	}
	if meta == nil {
		return "unverified", ExitSuccess, "No build metadata found; counts match."
	}
	var problems []string
	if meta.Records != len(records) || meta.RecordsHash != storage.RecordsHash(records) {
		problems = append(problems, "publication text changed since the last build")
	}
	if len(vectors) > 0 && meta.Dimensions != len(vectors[0]) {
		problems = append(problems, fmt.Sprintf("matrix has %d dimensions, build recorded %d", len(vectors[0]), meta.Dimensions))
	}
	if len(problems) > 0 {
		return "stale", ExitIndexStale, strings.Join(problems, "; ") + ". Run 'sbe index build'."
	}
	return "ok", ExitSuccess, ""
}

const (
	// progressBarWidth is the width in characters for terminal progress display.
	progressBarWidth = 30
	// progressLineClearWidth is the width needed to clear the entire progress line.
	progressLineClearWidth = 50
)

// buildProgressBar creates a progress bar string of the given width.
// Returns a string like "[=====>    ]" showing progress.
func buildProgressBar(current, total, width int) string {
	if total == 0 {
		return strings.Repeat(" ", width)
	}
	filled := (width * current) / total
	if filled >= width {
		return strings.Repeat("=", width)
	}
	return strings.Repeat("=", filled) + ">" + strings.Repeat(" ", width-filled-1)
}

// printProgress prints a progress bar to stderr.
func printProgress(current, total int) {
	if total == 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := buildProgressBar(current, total, progressBarWidth)
	fmt.Fprintf(os.Stderr, "\r[%s] %d/%d (%.0f%%)", bar, current, total, pct)
}
