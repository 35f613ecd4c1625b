// Package main provides the sbe CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spacebio/engine/internal/config"
	"github.com/spacebio/engine/internal/corpus"
	"github.com/spacebio/engine/internal/embedding"
	"github.com/spacebio/engine/internal/llm"
	"github.com/spacebio/engine/internal/logging"
	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/retrieval"
	"github.com/spacebio/engine/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	verbose     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sbe",
	Short: "Space biology knowledge engine",
	Long: `sbe searches a corpus of space-biology publications by meaning.

Core features:
  - Semantic search and related-paper lookup over precomputed embeddings
  - Question answering grounded on the most relevant papers
  - Summaries and entity extraction per paper
  - Citations in academic, BibTeX and plain styles
  - Corpus statistics, keyword exploration and frequent topics

All commands output JSON by default; use --human for readable text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to sbe.yml (default: search upward from the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// newCLILogger returns the stderr logger for one-shot commands.
func newCLILogger() *zap.Logger {
	return logging.NewCLILogger(os.Stderr, verbose)
}

// mustNewProvider builds the configured embedding provider, exits on error.
func mustNewProvider(cfg *config.Config) embedding.Provider {
	provider, err := embedding.New(embedding.Settings{
		Kind:       cfg.Embedding.Provider,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
	})
	if err != nil {
		exitWithError(ExitConfigError, "creating embedding provider: %v", err)
	}
	return provider
}

// newAssistant builds the completion assistant. It returns nil when no API
// key is configured; the service then answers with placeholders.
func newAssistant(cfg *config.Config, logger *zap.Logger) *llm.Assistant {
	client := llm.NewClient(
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSec)*time.Second),
		llm.WithRequestsPerMinute(requestsPerMinute(cfg.LLM.RequestsPerMinute)),
	)
	if !client.Configured() {
		logger.Warn("no completion API key configured; generated text is disabled",
			zap.String("env", config.GroqAPIKeyEnv))
		return nil
	}
	return llm.NewAssistant(client,
		llm.WithSummaryChars(cfg.Search.SummaryChars),
		llm.WithEntityChars(cfg.Search.EntityChars),
		llm.WithLogger(logger),
	)
}

// requestsPerMinute keeps the client default when the config leaves it unset.
func requestsPerMinute(n int) int {
	if n <= 0 {
		return llm.DefaultRequestsPerMinute
	}
	return n
}

// newStore returns a lazily loading corpus store for the configured files.
func newStore(cfg *config.Config) *corpus.Store {
	return corpus.NewStore(corpus.FileLoader(corpus.Paths{
		Records: cfg.RecordsPath(),
		Vectors: cfg.VectorsPath(),
	}))
}

// mustNewService wires the retrieval pipeline for one-shot commands.
func mustNewService(cfg *config.Config, logger *zap.Logger) *retrieval.Service {
	return retrieval.NewService(
		newStore(cfg),
		mustNewProvider(cfg),
		newAssistant(cfg, logger),
		serviceOptions(cfg),
		logger,
	)
}

// mustNewSearchService is mustNewService for commands that embed a query.
// It loads the corpus up front and exits with ExitConfigError when the
// embedding model cannot produce vectors of the corpus dimension.
func mustNewSearchService(ctx context.Context, cfg *config.Config, logger *zap.Logger) *retrieval.Service {
	store := newStore(cfg)
	c, err := store.Get(ctx)
	if err != nil {
		exitWithCorpusError(err)
	}
	provider := mustNewProvider(cfg)
	mustMatchDimensions(provider, c.Dimensions())
	return retrieval.NewService(store, provider, newAssistant(cfg, logger), serviceOptions(cfg), logger)
}

func mustMatchDimensions(provider embedding.Provider, corpusDims int) {
	if err := checkDimensions(provider, corpusDims); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
}

// checkDimensions reports a provider whose vectors cannot be ranked against
// a corpus of corpusDims dimensions. An empty corpus accepts any provider.
func checkDimensions(provider embedding.Provider, corpusDims int) error {
	if corpusDims == 0 || provider.Dimensions() == corpusDims {
		return nil
	}
	return fmt.Errorf("embedding model %s produces %d dimensions but the corpus matrix has %d; set embedding.model and embedding.dimensions to the model used by 'sbe index build'",
		provider.ModelName(), provider.Dimensions(), corpusDims)
}

func serviceOptions(cfg *config.Config) retrieval.Options {
	return retrieval.Options{
		TopK:              cfg.Search.TopK,
		ChatTopK:          cfg.Search.ChatTopK,
		ContextChars:      cfg.Search.ContextChars,
		ContextFieldChars: cfg.Search.ContextFieldChars,
		EmbedTimeout:      cfg.EmbedTimeout(),
	}
}

// mustOpenDatabase opens the SQLite database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(cfg *config.Config) *storage.DB {
	db, err := storage.OpenDB(cfg.DBPath())
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// mustOpenPopulatedDatabase opens the database and rebuilds it from the
// records table when it is empty.
func mustOpenPopulatedDatabase(cfg *config.Config) *storage.DB {
	db := mustOpenDatabase(cfg)
	n, err := db.Count()
	if err != nil {
		db.Close()
		exitWithError(ExitError, "counting publications: %v", err)
	}
	if n == 0 {
		if _, err := db.RebuildFromRecords(mustReadRecords(cfg)); err != nil {
			db.Close()
			exitWithError(ExitError, "populating database: %v", err)
		}
	}
	return db
}

// mustReadRecords reads the publications table, exits on error.
func mustReadRecords(cfg *config.Config) []publication.Record {
	records, err := corpus.ReadRecords(cfg.RecordsPath())
	if err != nil {
		exitWithCorpusError(err)
	}
	return records
}

// exitWithCorpusError exits with the code matching a corpus failure.
func exitWithCorpusError(err error) {
	exitWithError(exitCodeFor(err), "%v", err)
}

// exitCodeFor maps pipeline errors onto exit codes.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, corpus.ErrDataUnavailable):
		return ExitDataUnavailable
	case errors.Is(err, corpus.ErrDataIntegrity):
		return ExitDataIntegrity
	case errors.Is(err, retrieval.ErrRecordNotFound):
		return ExitNotFound
	default:
		return ExitError
	}
}
