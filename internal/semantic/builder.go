package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spacebio/engine/internal/embedding"
	"github.com/spacebio/engine/internal/publication"
	"go.uber.org/zap"
)

// MaxTextLength is the maximum text length (in characters) to embed.
// Longer texts are truncated before embedding.
const MaxTextLength = 8000

// ProgressReporter receives progress updates during embedding generation.
type ProgressReporter interface {
	// OnProgress is called with the current progress.
	OnProgress(current, total int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(current, total int)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(current, total int) {
	f(current, total)
}

// TextFallback supplies abstract text for a record that has none.
// Returning "" with a nil error means no fallback is available.
type TextFallback func(rec publication.Record) (string, error)

// Builder generates one embedding per record, in record order.
type Builder struct {
	provider  embedding.Provider
	progress  ProgressReporter
	fallback  TextFallback
	normalize bool
	logger    *zap.Logger
}

// NewBuilder creates a new embedding builder.
// Vectors are L2-normalised unless SetNormalize(false) is called.
func NewBuilder(provider embedding.Provider, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		provider:  provider,
		normalize: true,
		logger:    logger,
	}
}

// SetProgressReporter sets the progress reporter for the builder.
func (b *Builder) SetProgressReporter(reporter ProgressReporter) {
	b.progress = reporter
}

// SetFallback sets the text source used for records without an abstract.
func (b *Builder) SetFallback(fallback TextFallback) {
	b.fallback = fallback
}

// SetNormalize controls whether vectors are scaled to unit length.
func (b *Builder) SetNormalize(normalize bool) {
	b.normalize = normalize
}

// Build embeds every record. The returned slice is positionally aligned with
// records: vectors[i] belongs to records[i].
func (b *Builder) Build(ctx context.Context, records []publication.Record) ([][]float32, *BuildStats, error) {
	startTime := time.Now()

	stats := &BuildStats{
		Model:      b.provider.ModelName(),
		Dimensions: b.provider.Dimensions(),
	}
	vectors := make([][]float32, 0, len(records))
	total := len(records)

	for i, rec := range records {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		if b.progress != nil {
			b.progress.OnProgress(i+1, total)
		}

		text, source := b.textFor(rec)
		switch source {
		case sourceTitle:
			stats.TitleOnly++
		case sourcePDF:
			stats.PDFFallback++
		}

		emb, err := b.provider.Embed(ctx, truncateRunes(text, MaxTextLength))
		if err != nil {
			return nil, nil, fmt.Errorf("embedding record %d: %w", rec.ID, err)
		}
		if emb.Dimensions() != stats.Dimensions {
			return nil, nil, fmt.Errorf("%w: record %d embedded to %d dimensions, want %d",
				ErrDimensionMismatch, rec.ID, emb.Dimensions(), stats.Dimensions)
		}

		if b.normalize {
			Normalize(emb.Vector)
		}
		vectors = append(vectors, emb.Vector)
		stats.RecordsEmbedded++
	}

	stats.Duration = time.Since(startTime)
	b.logger.Info("embeddings built",
		zap.Int("records", stats.RecordsEmbedded),
		zap.Int("title_only", stats.TitleOnly),
		zap.Int("pdf_fallback", stats.PDFFallback),
		zap.String("model", stats.Model),
		zap.Duration("duration", stats.Duration),
	)

	return vectors, stats, nil
}

type textSource int

const (
	sourceAbstract textSource = iota
	sourceTitle
	sourcePDF
)

// textFor picks the text to embed for rec.
func (b *Builder) textFor(rec publication.Record) (string, textSource) {
	if strings.TrimSpace(rec.Abstract) != "" {
		return rec.EmbeddingText(), sourceAbstract
	}

	if b.fallback != nil {
		text, err := b.fallback(rec)
		if err != nil {
			b.logger.Warn("pdf fallback failed", zap.Int("record", rec.ID), zap.Error(err))
		} else if text = strings.TrimSpace(text); text != "" {
			withText := rec
			withText.Abstract = text
			return withText.EmbeddingText(), sourcePDF
		}
	}

	return rec.EmbeddingText(), sourceTitle
}

// truncateRunes cuts s to at most maxLen runes.
func truncateRunes(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}
