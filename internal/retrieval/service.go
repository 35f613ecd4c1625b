package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spacebio/engine/internal/corpus"
	"github.com/spacebio/engine/internal/embedding"
	"github.com/spacebio/engine/internal/llm"
	"github.com/spacebio/engine/internal/metrics"
	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/semantic"
)

// Per-request errors. Service converts them into a Status; they are exposed
// on responses for logging and for callers that want to branch on them.
var (
	ErrEmptyInput          = errors.New("query is empty")
	ErrCollaboratorTimeout = errors.New("collaborator timed out")
	ErrCollaborator        = errors.New("collaborator failed")
	ErrRecordNotFound      = errors.New("record not found")
)

// Status is the outcome of a per-request operation.
type Status string

const (
	StatusOK          Status = "ok"
	StatusEmptyQuery  Status = "empty_query"
	StatusUnavailable Status = "unavailable"
)

// Defaults for Options.
const (
	DefaultTopK         = 5
	DefaultChatTopK     = 3
	DefaultEmbedTimeout = 15 * time.Second
)

// Options tunes a Service.
type Options struct {
	TopK              int           // results per search when the request does not say
	ChatTopK          int           // papers given to the chat model
	ContextChars      int           // total context budget for chat
	ContextFieldChars int           // per-abstract budget for chat
	EmbedTimeout      time.Duration // budget for embedding one query
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.ChatTopK <= 0 {
		o.ChatTopK = DefaultChatTopK
	}
	if o.ContextChars <= 0 {
		o.ContextChars = DefaultContextChars
	}
	if o.ContextFieldChars <= 0 {
		o.ContextFieldChars = DefaultContextFieldChars
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = DefaultEmbedTimeout
	}
}

// Service answers search, chat and per-paper requests against the corpus.
// It is safe for concurrent use.
type Service struct {
	store     *corpus.Store
	embedder  embedding.Provider
	assistant *llm.Assistant
	opts      Options
	logger    *zap.Logger
}

// NewService creates a Service. assistant may be nil when no completion
// service is configured; chat and summaries then return placeholders.
func NewService(store *corpus.Store, embedder embedding.Provider, assistant *llm.Assistant, opts Options, logger *zap.Logger) *Service {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if assistant == nil {
		assistant = llm.NewAssistant(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
			return "", llm.ErrNotConfigured
		}))
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		assistant: assistant,
		opts:      opts,
		logger:    logger,
	}
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// SearchRequest is a free-text search.
type SearchRequest struct {
	Query  string
	K      int       // 0 means Options.TopK
	Filter Predicate // applied after ranking; nil accepts all
}

// SearchResponse is the outcome of Search.
type SearchResponse struct {
	Status  Status   `json:"status"`
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Message string   `json:"message,omitempty"`
	Err     error    `json:"-"`
}

// Search embeds the query, ranks the corpus and filters the top K.
//
// The returned error is reserved for corpus failures, which are fatal.
// Everything else is reported through the response status.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	resp := &SearchResponse{Query: req.Query, Results: []Result{}}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		resp.Status = StatusEmptyQuery
		resp.Message = "Enter a question or keywords to search."
		resp.Err = ErrEmptyInput
		metrics.SearchRequestsTotal.WithLabelValues("search", string(resp.Status)).Inc()
		return resp, nil
	}

	c, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	k := req.K
	if k <= 0 {
		k = s.opts.TopK
	}

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		resp.Status = StatusUnavailable
		resp.Message = "Search is temporarily unavailable. Please try again."
		resp.Err = err
		s.logger.Warn("query embedding failed", zap.String("query", query), zap.Error(err))
		metrics.SearchRequestsTotal.WithLabelValues("search", string(resp.Status)).Inc()
		return resp, nil
	}

	start := time.Now()
	hits, err := c.Ranker().Rank(vec, k)
	metrics.RankDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, semantic.ErrDimensionMismatch) {
		resp.Status = StatusUnavailable
		resp.Message = "Search is temporarily unavailable. Please try again."
		resp.Err = fmt.Errorf("%w: embedding model does not match the corpus: %v", ErrCollaborator, err)
		s.logger.Error("query embedding has the wrong dimension",
			zap.String("model", s.embedder.ModelName()),
			zap.Int("query_dimensions", len(vec)),
			zap.Int("corpus_dimensions", c.Dimensions()),
		)
		metrics.SearchRequestsTotal.WithLabelValues("search", string(resp.Status)).Inc()
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ranking corpus: %w", err)
	}

	resp.Results = Filter(resultsFromHits(c, hits), req.Filter)
	resp.Status = StatusOK
	metrics.SearchRequestsTotal.WithLabelValues("search", string(resp.Status)).Inc()

	s.logger.Debug("search",
		zap.String("query", query),
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
		zap.Int("results", len(resp.Results)),
	)
	return resp, nil
}

// embedQuery embeds text within the embed budget. Timeouts and provider
// failures become ErrCollaboratorTimeout and ErrCollaborator.
func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()

	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding query after %s", ErrCollaboratorTimeout, s.opts.EmbedTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrCollaborator, err)
	}
	return emb.Vector, nil
}

// Source identifies a paper used to answer a chat question.
type Source struct {
	ID      int              `json:"id"`
	Title   string           `json:"title"`
	Authors string           `json:"authors"`
	Year    publication.Year `json:"year"`
	Score   float64          `json:"score"`
}

// ChatRequest is a question for the chat assistant.
type ChatRequest struct {
	Question string
	Mode     llm.Mode
	Filter   Predicate
}

// ChatResponse is the outcome of Chat. Answer is always displayable.
type ChatResponse struct {
	Status  Status   `json:"status"`
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Context string   `json:"-"`
	Message string   `json:"message,omitempty"`
	Err     error    `json:"-"`
}

// Chat retrieves the most relevant papers for a question and asks the
// completion service to answer from them.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp := &ChatResponse{Sources: []Source{}}

	search, err := s.Search(ctx, SearchRequest{Query: req.Question, K: s.opts.ChatTopK, Filter: req.Filter})
	if err != nil {
		return nil, err
	}
	if search.Status != StatusOK {
		resp.Status = search.Status
		resp.Message = search.Message
		resp.Err = search.Err
		resp.Answer = search.Message
		if search.Status == StatusUnavailable {
			resp.Answer = llm.PlaceholderAnswer
		}
		return resp, nil
	}

	if len(search.Results) == 0 {
		resp.Status = StatusOK
		resp.Answer = llm.PlaceholderNoSources
		metrics.SearchRequestsTotal.WithLabelValues("chat", string(resp.Status)).Inc()
		return resp, nil
	}

	for _, r := range search.Results {
		resp.Sources = append(resp.Sources, Source{
			ID:      r.ID,
			Title:   r.TitleOrPlaceholder(),
			Authors: r.AuthorsOrPlaceholder(),
			Year:    r.Year,
			Score:   r.Score,
		})
	}
	resp.Context = Assemble(search.Results, s.opts.ContextChars, s.opts.ContextFieldChars)

	c, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	answer, err := s.assistant.Answer(ctx, llm.AnswerRequest{
		Question:   strings.TrimSpace(req.Question),
		Context:    resp.Context,
		Mode:       req.Mode,
		Shown:      len(search.Results),
		CorpusSize: c.Len(),
	})
	resp.Answer = answer
	resp.Status = StatusOK
	if err != nil {
		resp.Status = StatusUnavailable
		resp.Err = collaboratorError(err)
		resp.Message = "The assistant is temporarily unavailable."
	}
	metrics.SearchRequestsTotal.WithLabelValues("chat", string(resp.Status)).Inc()
	return resp, nil
}

// Paper returns the record with the given ID.
func (s *Service) Paper(ctx context.Context, id int) (publication.Record, error) {
	c, err := s.store.Get(ctx)
	if err != nil {
		return publication.Record{}, err
	}
	rec, ok := c.Record(id)
	if !ok {
		return publication.Record{}, fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	return rec, nil
}

// Similar returns the k papers closest to paper id, excluding itself.
func (s *Service) Similar(ctx context.Context, id, k int) ([]Result, error) {
	c, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.opts.TopK
	}
	hits, err := c.Ranker().FindSimilar(id, k)
	if errors.Is(err, semantic.ErrRecordNotIndexed) {
		return nil, fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return resultsFromHits(c, hits), nil
}

// SummaryResponse is the outcome of Summarize.
type SummaryResponse struct {
	Status  Status   `json:"status"`
	ID      int      `json:"id"`
	Title   string   `json:"title"`
	Mode    llm.Mode `json:"mode"`
	Summary string   `json:"summary"`
	Err     error    `json:"-"`
}

// Summarize generates a summary of paper id.
func (s *Service) Summarize(ctx context.Context, id int, mode llm.Mode) (*SummaryResponse, error) {
	rec, err := s.Paper(ctx, id)
	if err != nil {
		return nil, err
	}
	text, err := s.assistant.Summarize(ctx, rec.TitleOrPlaceholder(), rec.Abstract, mode)
	resp := &SummaryResponse{
		Status:  StatusOK,
		ID:      rec.ID,
		Title:   rec.TitleOrPlaceholder(),
		Mode:    mode,
		Summary: text,
	}
	if err != nil {
		resp.Status = StatusUnavailable
		resp.Err = collaboratorError(err)
	}
	return resp, nil
}

// EntitiesResponse is the outcome of Entities.
type EntitiesResponse struct {
	Status   Status       `json:"status"`
	ID       int          `json:"id"`
	Title    string       `json:"title"`
	Entities llm.Entities `json:"entities"`
	Err      error        `json:"-"`
}

// Entities extracts structured facts from paper id. Title is used as text
// when the abstract is empty.
func (s *Service) Entities(ctx context.Context, id int) (*EntitiesResponse, error) {
	rec, err := s.Paper(ctx, id)
	if err != nil {
		return nil, err
	}
	text := rec.Abstract
	if strings.TrimSpace(text) == "" {
		text = rec.Title
	}
	ents, err := s.assistant.ExtractEntities(ctx, rec.TitleOrPlaceholder(), text)
	resp := &EntitiesResponse{
		Status:   StatusOK,
		ID:       rec.ID,
		Title:    rec.TitleOrPlaceholder(),
		Entities: ents,
	}
	if err != nil {
		resp.Status = StatusUnavailable
		resp.Err = collaboratorError(err)
	}
	return resp, nil
}

// collaboratorError maps completion errors onto the retrieval taxonomy.
func collaboratorError(err error) error {
	if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCollaboratorTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrCollaborator, err)
}
