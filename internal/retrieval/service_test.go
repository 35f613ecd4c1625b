package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spacebio/engine/internal/corpus"
	"github.com/spacebio/engine/internal/embedding"
	"github.com/spacebio/engine/internal/llm"
	"github.com/spacebio/engine/internal/publication"
	"github.com/spacebio/engine/internal/semantic"
)

// mapEmbedder returns fixed vectors per query text.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   int
	delay   time.Duration
	err     error
}

func (m *mapEmbedder) Embed(ctx context.Context, text string) (embedding.Embedding, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return embedding.Embedding{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return embedding.Embedding{}, m.err
	}
	v, ok := m.vectors[text]
	if !ok {
		v = []float32{0, 0}
	}
	return embedding.Embedding{Vector: v}, nil
}

func (m *mapEmbedder) ModelName() string { return "map" }
func (m *mapEmbedder) Dimensions() int   { return 2 }

func testStore(t *testing.T) *corpus.Store {
	t.Helper()
	records := []publication.Record{
		{ID: 0, Title: "Bone loss in mice", Authors: "Smith J", Year: 2021, Abstract: strings.Repeat("Bone density fell during flight. ", 5)},
		{ID: 1, Title: "Plant roots in orbit", Authors: publication.NotSpecified, Year: 2019},
		{ID: 2, Title: "Osteoclast activity", Authors: "Lee K", Year: 2023, Abstract: "Osteoclasts were more active."},
	}
	vectors := [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}}
	return corpus.NewStore(func() (*corpus.Corpus, error) {
		return corpus.New(records, vectors)
	})
}

func newTestService(t *testing.T, emb embedding.Provider, completer llm.Completer, opts Options) *Service {
	t.Helper()
	var assistant *llm.Assistant
	if completer != nil {
		assistant = llm.NewAssistant(completer)
	}
	return NewService(testStore(t), emb, assistant, opts, nil)
}

func TestService_Search(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"bone": {1, 0}}}
	svc := newTestService(t, emb, nil, Options{})

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "  bone ", K: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("status = %s, want ok", resp.Status)
	}
	if got := ids(resp.Results); !equalInts(got, []int{0, 2}) {
		t.Errorf("results = %v, want [0 2]", got)
	}
	if resp.Results[1].Score < 0.99 || resp.Results[1].Score > 0.995 {
		t.Errorf("second score = %v, want ~0.994", resp.Results[1].Score)
	}
}

func TestService_SearchWithFilter(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"bone": {1, 0}}}
	svc := newTestService(t, emb, nil, Options{})

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "bone", K: 3, Filter: YearIn(2023)})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := ids(resp.Results); !equalInts(got, []int{2}) {
		t.Errorf("results = %v, want [2]", got)
	}

	resp, _ = svc.Search(context.Background(), SearchRequest{Query: "bone", K: 3, Filter: YearIn(1990)})
	if resp.Status != StatusOK || len(resp.Results) != 0 {
		t.Errorf("all-rejected filter should give ok with no results, got %s %d", resp.Status, len(resp.Results))
	}
}

func TestService_SearchDefaultK(t *testing.T) {
	svc := newTestService(t, &mapEmbedder{}, nil, Options{TopK: 1})
	resp, _ := svc.Search(context.Background(), SearchRequest{Query: "anything"})
	if len(resp.Results) != 1 {
		t.Errorf("expected TopK=1 results, got %d", len(resp.Results))
	}
}

func TestService_EmptyQuery(t *testing.T) {
	emb := &mapEmbedder{}
	svc := newTestService(t, emb, nil, Options{})

	for _, q := range []string{"", "   ", "\n\t"} {
		resp, err := svc.Search(context.Background(), SearchRequest{Query: q})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if resp.Status != StatusEmptyQuery || !errors.Is(resp.Err, ErrEmptyInput) {
			t.Errorf("query %q: status = %s, err = %v", q, resp.Status, resp.Err)
		}
		if len(resp.Results) != 0 {
			t.Errorf("query %q: expected no results", q)
		}
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for blank queries, want 0", emb.calls)
	}
}

func TestService_EmbedTimeout(t *testing.T) {
	emb := &mapEmbedder{delay: time.Second}
	svc := newTestService(t, emb, nil, Options{EmbedTimeout: 20 * time.Millisecond})

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "bone"})
	if err != nil {
		t.Fatalf("timeout should not be fatal: %v", err)
	}
	if resp.Status != StatusUnavailable {
		t.Errorf("status = %s, want unavailable", resp.Status)
	}
	if !errors.Is(resp.Err, ErrCollaboratorTimeout) {
		t.Errorf("expected ErrCollaboratorTimeout, got %v", resp.Err)
	}
}

func TestService_EmbedFailure(t *testing.T) {
	emb := &mapEmbedder{err: embedding.ErrProvider}
	svc := newTestService(t, emb, nil, Options{})

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "bone"})
	if err != nil {
		t.Fatalf("provider failure should not be fatal: %v", err)
	}
	if resp.Status != StatusUnavailable || !errors.Is(resp.Err, ErrCollaborator) {
		t.Errorf("status = %s, err = %v", resp.Status, resp.Err)
	}
}

func TestService_EmbedDimensionMismatch(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"bone": {1, 0, 0}}}
	svc := newTestService(t, emb, nil, Options{})

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "bone"})
	if err != nil {
		t.Fatalf("dimension mismatch should not be fatal: %v", err)
	}
	if resp.Status != StatusUnavailable {
		t.Errorf("status = %s, want unavailable", resp.Status)
	}
	if !errors.Is(resp.Err, ErrCollaborator) {
		t.Errorf("expected ErrCollaborator, got %v", resp.Err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %v, want none", ids(resp.Results))
	}

	chat, err := svc.Chat(context.Background(), ChatRequest{Question: "bone"})
	if err != nil {
		t.Fatalf("dimension mismatch should not be fatal for chat: %v", err)
	}
	if chat.Status != StatusUnavailable || chat.Answer != llm.PlaceholderAnswer {
		t.Errorf("chat status = %s, answer = %q", chat.Status, chat.Answer)
	}
}

// stubRanker returns fixed hits and records what it was asked.
type stubRanker struct {
	hits      []semantic.Hit
	rankK     int
	similarOf int
}

func (r *stubRanker) Rank(query []float32, k int) ([]semantic.Hit, error) {
	r.rankK = k
	return r.hits, nil
}

func (r *stubRanker) FindSimilar(index, k int) ([]semantic.Hit, error) {
	if index < 0 || index >= r.Len() {
		return nil, semantic.ErrRecordNotIndexed
	}
	r.similarOf = index
	return r.hits, nil
}

func (r *stubRanker) Len() int        { return 3 }
func (r *stubRanker) Dimensions() int { return 2 }

func TestService_CustomRanker(t *testing.T) {
	records := []publication.Record{
		{ID: 0, Title: "Bone loss in mice", Year: 2021},
		{ID: 1, Title: "Plant roots in orbit", Year: 2019},
		{ID: 2, Title: "Osteoclast activity", Year: 2023},
	}
	ranker := &stubRanker{hits: []semantic.Hit{{Index: 1, Score: 0.8}, {Index: 2, Score: 0.5}}}
	store := corpus.NewStore(func() (*corpus.Corpus, error) {
		return corpus.NewWithRanker(records, ranker)
	})
	svc := NewService(store, &mapEmbedder{}, nil, Options{}, nil)
	ctx := context.Background()

	resp, err := svc.Search(ctx, SearchRequest{Query: "anything", K: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := ids(resp.Results); !equalInts(got, []int{1, 2}) {
		t.Errorf("results = %v, want [1 2]", got)
	}
	if ranker.rankK != 2 {
		t.Errorf("ranker asked for k=%d, want 2", ranker.rankK)
	}

	similar, err := svc.Similar(ctx, 0, 2)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if ranker.similarOf != 0 || !equalInts(ids(similar), []int{1, 2}) {
		t.Errorf("Similar(0) = %v from index %d", ids(similar), ranker.similarOf)
	}
	if _, err := svc.Similar(ctx, 7, 2); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestService_CorpusFailureIsFatal(t *testing.T) {
	store := corpus.NewStore(func() (*corpus.Corpus, error) {
		return nil, corpus.ErrDataUnavailable
	})
	svc := NewService(store, &mapEmbedder{}, nil, Options{}, nil)

	_, err := svc.Search(context.Background(), SearchRequest{Query: "bone"})
	if !errors.Is(err, corpus.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestService_Chat(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"How does bone change?": {1, 0}}}
	var got llm.Request
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return "According to Paper 1, bone density fell.", nil
	})
	svc := newTestService(t, emb, completer, Options{ChatTopK: 2, ContextFieldChars: 20})

	resp, err := svc.Chat(context.Background(), ChatRequest{Question: "How does bone change?", Mode: llm.ModeAcademic})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("status = %s, err = %v", resp.Status, resp.Err)
	}
	if resp.Answer != "According to Paper 1, bone density fell." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 2 || resp.Sources[0].Title != "Bone loss in mice" || resp.Sources[1].ID != 2 {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
	if !strings.Contains(got.System, "[Paper 2]\nTitle: Osteoclast activity") {
		t.Errorf("system prompt should carry the assembled context: %q", got.System)
	}
	if !strings.Contains(got.System, "Bone density fell du"+FieldTruncationMarker) {
		t.Errorf("abstracts should be cut to the field budget: %q", got.System)
	}
	if !strings.Contains(got.System, "access to 3 scientific papers") {
		t.Errorf("system prompt should mention corpus size: %q", got.System)
	}
}

func TestService_ChatCompletionTimeout(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "", llm.ErrTimeout
	})
	svc := newTestService(t, emb, completer, Options{})

	resp, err := svc.Chat(context.Background(), ChatRequest{Question: "q"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Status != StatusUnavailable || !errors.Is(resp.Err, ErrCollaboratorTimeout) {
		t.Errorf("status = %s, err = %v", resp.Status, resp.Err)
	}
	if resp.Answer != llm.PlaceholderAnswer {
		t.Errorf("answer = %q, want placeholder", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Error("sources should still be reported")
	}
}

func TestService_ChatEmptyQuestion(t *testing.T) {
	svc := newTestService(t, &mapEmbedder{}, nil, Options{})
	resp, err := svc.Chat(context.Background(), ChatRequest{Question: " "})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Status != StatusEmptyQuery || resp.Answer == "" {
		t.Errorf("status = %s, answer = %q", resp.Status, resp.Answer)
	}
}

func TestService_ChatNoCompleter(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	svc := newTestService(t, emb, nil, Options{})

	resp, _ := svc.Chat(context.Background(), ChatRequest{Question: "q"})
	if resp.Status != StatusUnavailable || !errors.Is(resp.Err, ErrCollaborator) {
		t.Errorf("status = %s, err = %v", resp.Status, resp.Err)
	}
}

func TestService_PaperAndSimilar(t *testing.T) {
	svc := newTestService(t, &mapEmbedder{}, nil, Options{})
	ctx := context.Background()

	rec, err := svc.Paper(ctx, 2)
	if err != nil || rec.Title != "Osteoclast activity" {
		t.Errorf("Paper(2) = %+v, %v", rec, err)
	}
	if _, err := svc.Paper(ctx, 9); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}

	similar, err := svc.Similar(ctx, 0, 1)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if len(similar) != 1 || similar[0].ID != 2 {
		t.Errorf("Similar(0) = %v, want [2]", ids(similar))
	}
	if _, err := svc.Similar(ctx, -1, 1); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestService_SummarizeAndEntities(t *testing.T) {
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "Extract in JSON format") {
			return `{"organism":"mouse","condition":"microgravity","key_finding":"bone loss","methodology":"CT"}`, nil
		}
		return "1. Mice flew.", nil
	})
	svc := newTestService(t, &mapEmbedder{}, completer, Options{})
	ctx := context.Background()

	sum, err := svc.Summarize(ctx, 0, llm.ModeOutreach)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if sum.Status != StatusOK || sum.Summary != "1. Mice flew." || sum.Mode != llm.ModeOutreach {
		t.Errorf("unexpected summary: %+v", sum)
	}

	short, _ := svc.Summarize(ctx, 1, llm.ModeAcademic)
	if short.Summary != llm.PlaceholderShortAbstract {
		t.Errorf("summary of a paper without abstract = %q", short.Summary)
	}

	ents, err := svc.Entities(ctx, 0)
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}
	if ents.Entities.Organism != "mouse" {
		t.Errorf("unexpected entities: %+v", ents.Entities)
	}

	if _, err := svc.Summarize(ctx, 42, llm.ModeAcademic); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}
