package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Generation budgets.
const (
	DefaultSummaryChars = 2500
	DefaultEntityChars  = 1500

	// minSummaryChars is the shortest abstract worth summarising.
	minSummaryChars = 50

	summaryTemperature = 0.4
	summaryMaxTokens   = 600
	entityTemperature  = 0.1
	entityMaxTokens    = 300
	answerTemperature  = 0.5
	answerMaxTokens    = 1000
)

// Placeholders returned instead of generated text.
const (
	PlaceholderShortAbstract = "Abstract too short or unavailable to generate a summary."
	PlaceholderSummary       = "Summary unavailable: the language model did not respond."
	PlaceholderAnswer        = "Answer unavailable: the language model did not respond. Please try again."
	PlaceholderNoSources     = "No relevant papers were found for this question. Try rephrasing it."
)

// Entities are the structured facts extracted from one publication.
type Entities struct {
	Organism    string `json:"organism"`
	Condition   string `json:"condition"`
	KeyFinding  string `json:"key_finding"`
	Methodology string `json:"methodology"`
}

// UnavailableEntities is returned when extraction fails.
var UnavailableEntities = Entities{
	Organism:    "N/A",
	Condition:   "N/A",
	KeyFinding:  "Not available",
	Methodology: "N/A",
}

// Assistant builds prompts for the space-biology corpus and sends them to a
// Completer.
type Assistant struct {
	completer    Completer
	logger       *zap.Logger
	summaryChars int
	entityChars  int
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithSummaryChars caps the abstract length sent for summaries.
func WithSummaryChars(n int) AssistantOption {
	return func(a *Assistant) {
		if n > 0 {
			a.summaryChars = n
		}
	}
}

// WithEntityChars caps the text length sent for entity extraction.
func WithEntityChars(n int) AssistantOption {
	return func(a *Assistant) {
		if n > 0 {
			a.entityChars = n
		}
	}
}

// WithLogger sets the logger used to report completion failures.
func WithLogger(logger *zap.Logger) AssistantOption {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAssistant creates an Assistant backed by completer.
func NewAssistant(completer Completer, opts ...AssistantOption) *Assistant {
	a := &Assistant{
		completer:    completer,
		logger:       zap.NewNop(),
		summaryChars: DefaultSummaryChars,
		entityChars:  DefaultEntityChars,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize returns a three-point summary of a publication. The text is always
// displayable; err reports why a placeholder was returned.
func (a *Assistant) Summarize(ctx context.Context, title, abstract string, mode Mode) (string, error) {
	abstract = strings.TrimSpace(abstract)
	if utf8.RuneCountInString(abstract) < minSummaryChars {
		return PlaceholderShortAbstract, nil
	}

	text, err := a.completer.Complete(ctx, Request{
		Prompt:      summaryPrompt(title, truncateWithEllipsis(abstract, a.summaryChars), mode),
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil || text == "" {
		err = emptyAsError(err)
		a.logger.Warn("summary failed", zap.String("title", title), zap.Error(err))
		return PlaceholderSummary, err
	}
	return text, nil
}

// ExtractEntities asks for organism, condition, key finding and methodology.
// On any failure UnavailableEntities is returned along with the error.
func (a *Assistant) ExtractEntities(ctx context.Context, title, text string) (Entities, error) {
	reply, err := a.completer.Complete(ctx, Request{
		Prompt:      entityPrompt(title, truncateWithEllipsis(strings.TrimSpace(text), a.entityChars)),
		Temperature: entityTemperature,
		MaxTokens:   entityMaxTokens,
	})
	if err != nil {
		a.logger.Warn("entity extraction failed", zap.String("title", title), zap.Error(err))
		return UnavailableEntities, err
	}

	ents, err := parseEntities(reply)
	if err != nil {
		a.logger.Warn("entity reply not parseable", zap.String("title", title), zap.Error(err))
		return UnavailableEntities, err
	}
	return ents, nil
}

// AnswerRequest is the input of Answer.
type AnswerRequest struct {
	Question   string
	Context    string // assembled paper blocks
	Mode       Mode
	Shown      int // papers included in Context
	CorpusSize int // papers in the whole corpus
}

// Answer replies to a question grounded on the assembled paper context.
func (a *Assistant) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	text, err := a.completer.Complete(ctx, Request{
		System:      answerSystemPrompt(req),
		Prompt:      req.Question,
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil || text == "" {
		err = emptyAsError(err)
		a.logger.Warn("answer failed", zap.Error(err))
		return PlaceholderAnswer, err
	}
	return text, nil
}

func emptyAsError(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: empty reply", ErrCompletion)
}

func summaryPrompt(title, abstract string, mode Mode) string {
	if mode == ModeOutreach {
		return fmt.Sprintf(`You are a science communicator specializing in space.

Title: %s

Abstract: %s

Explain this space research for high school students in 3 simple points:
1. What experiment was done? (as if explaining to a friend)
2. What did they discover? (with everyday examples)
3. Why is it important for space travel?

Use simple language, analogies, and avoid technical jargon.`, title, abstract)
	}

	return fmt.Sprintf(`You are an expert in NASA space bioscience.

Title: %s

Abstract: %s

Summarize this scientific publication in 3 key points:
1. Methodology and experimental design
2. Main results with specific data
3. Implications for space exploration

Use precise scientific terminology. Each point: 2-3 sentences.`, title, abstract)
}

func entityPrompt(title, text string) string {
	return fmt.Sprintf(`Analyze this scientific text about space biology.

Title: %s

Text: %s

Extract in JSON format:
- "organism": Organism studied
- "condition": Space condition (microgravity, radiation, etc.)
- "key_finding": Main finding (max 15 words)
- "methodology": Method used

If info is missing, use "Not specified".
Respond ONLY with JSON, no markdown.`, title, text)
}

func answerSystemPrompt(req AnswerRequest) string {
	if req.Mode == ModeOutreach {
		return fmt.Sprintf(`You are a science communicator specializing in space with access to %d NASA papers.

Most relevant papers:
%s

INSTRUCTIONS:
- These are %d examples of the %d available papers
- Respond in a friendly and clear manner
- Use analogies when possible
- Be enthusiastic and educational`, req.CorpusSize, req.Context, req.Shown, req.CorpusSize)
	}

	return fmt.Sprintf(`You are an expert researcher in NASA space biology with access to %d scientific papers.

Most relevant papers for this query:
%s

INSTRUCTIONS:
- These are only %d examples of the %d available papers
- Cite specific papers: "According to Paper 1..."
- If papers are not relevant, suggest rephrasing the question
- Use precise scientific terminology
- Be conversational but accurate`, req.CorpusSize, req.Context, req.Shown, req.CorpusSize)
}

// parseEntities decodes an entity reply, tolerating markdown fences and
// surrounding prose. Missing fields become "Not specified".
func parseEntities(reply string) (Entities, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = extractFromCodeBlock(text)
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var ents Entities
	if err := json.Unmarshal([]byte(text), &ents); err != nil {
		return Entities{}, fmt.Errorf("%w: parsing entity JSON: %v", ErrCompletion, err)
	}

	for _, f := range []*string{&ents.Organism, &ents.Condition, &ents.KeyFinding, &ents.Methodology} {
		if *f = strings.TrimSpace(*f); *f == "" {
			*f = "Not specified"
		}
	}
	return ents, nil
}

// extractFromCodeBlock extracts content from a markdown code block.
func extractFromCodeBlock(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return strings.Trim(text, "`")
	}

	end := len(lines)
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}

// truncateWithEllipsis cuts s to maxRunes runes and appends "..." when cut.
func truncateWithEllipsis(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
