package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

// recorder is a Completer that returns a canned reply and keeps the request.
type recorder struct {
	reply string
	err   error
	last  Request
	calls int
}

func (r *recorder) Complete(_ context.Context, req Request) (string, error) {
	r.calls++
	r.last = req
	return r.reply, r.err
}

func TestSummarize(t *testing.T) {
	abstract := strings.Repeat("Spaceflight alters gene expression in mouse liver. ", 3)

	t.Run("academic prompt", func(t *testing.T) {
		rec := &recorder{reply: "1. Methods..."}
		got, err := NewAssistant(rec).Summarize(context.Background(), "Liver genes", abstract, ModeAcademic)
		if err != nil {
			t.Fatalf("Summarize failed: %v", err)
		}
		if got != "1. Methods..." {
			t.Errorf("summary = %q", got)
		}
		if !strings.Contains(rec.last.Prompt, "expert in NASA space bioscience") {
			t.Error("academic prompt expected")
		}
		if rec.last.Temperature != summaryTemperature || rec.last.MaxTokens != summaryMaxTokens {
			t.Errorf("unexpected sampling params: %+v", rec.last)
		}
	})

	t.Run("outreach prompt", func(t *testing.T) {
		rec := &recorder{reply: "ok"}
		NewAssistant(rec).Summarize(context.Background(), "Liver genes", abstract, ModeOutreach)
		if !strings.Contains(rec.last.Prompt, "high school students") {
			t.Error("outreach prompt expected")
		}
	})

	t.Run("short abstract skips the model", func(t *testing.T) {
		rec := &recorder{reply: "should not be used"}
		got, err := NewAssistant(rec).Summarize(context.Background(), "T", "Too short.", ModeAcademic)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != PlaceholderShortAbstract {
			t.Errorf("summary = %q, want placeholder", got)
		}
		if rec.calls != 0 {
			t.Errorf("completer called %d times, want 0", rec.calls)
		}
	})

	t.Run("long abstract truncated", func(t *testing.T) {
		rec := &recorder{reply: "ok"}
		long := strings.Repeat("x", 10000)
		NewAssistant(rec, WithSummaryChars(100)).Summarize(context.Background(), "T", long, ModeAcademic)
		if strings.Contains(rec.last.Prompt, strings.Repeat("x", 101)) {
			t.Error("abstract should be truncated to 100 characters")
		}
		if !strings.Contains(rec.last.Prompt, strings.Repeat("x", 100)+"...") {
			t.Error("truncated abstract should end with an ellipsis")
		}
	})

	t.Run("failure returns placeholder", func(t *testing.T) {
		rec := &recorder{err: ErrTimeout}
		got, err := NewAssistant(rec).Summarize(context.Background(), "T", abstract, ModeAcademic)
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if got != PlaceholderSummary {
			t.Errorf("summary = %q, want placeholder", got)
		}
	})
}

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Entities
	}{
		{
			name:  "plain JSON",
			reply: `{"organism":"Mus musculus","condition":"microgravity","key_finding":"Bone loss","methodology":"micro-CT"}`,
			want:  Entities{"Mus musculus", "microgravity", "Bone loss", "micro-CT"},
		},
		{
			name:  "fenced JSON",
			reply: "```json\n{\"organism\":\"Arabidopsis\",\"condition\":\"spaceflight\",\"key_finding\":\"Altered roots\",\"methodology\":\"RNA-seq\"}\n```",
			want:  Entities{"Arabidopsis", "spaceflight", "Altered roots", "RNA-seq"},
		},
		{
			name:  "prose around JSON and missing field",
			reply: "Here you go: {\"organism\":\"C. elegans\",\"condition\":\"radiation\",\"key_finding\":\"DNA damage\"} Hope that helps.",
			want:  Entities{"C. elegans", "radiation", "DNA damage", "Not specified"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{reply: tt.reply}
			got, err := NewAssistant(rec).ExtractEntities(context.Background(), "T", "text")
			if err != nil {
				t.Fatalf("ExtractEntities failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("entities = %+v, want %+v", got, tt.want)
			}
			if rec.last.Temperature != entityTemperature || rec.last.MaxTokens != entityMaxTokens {
				t.Errorf("unexpected sampling params: %+v", rec.last)
			}
		})
	}

	t.Run("unparseable reply", func(t *testing.T) {
		rec := &recorder{reply: "I cannot help with that."}
		got, err := NewAssistant(rec).ExtractEntities(context.Background(), "T", "text")
		if !errors.Is(err, ErrCompletion) {
			t.Errorf("expected ErrCompletion, got %v", err)
		}
		if got != UnavailableEntities {
			t.Errorf("entities = %+v, want placeholder", got)
		}
	})

	t.Run("completer failure", func(t *testing.T) {
		rec := &recorder{err: ErrTimeout}
		got, _ := NewAssistant(rec).ExtractEntities(context.Background(), "T", "text")
		if got != UnavailableEntities {
			t.Errorf("entities = %+v, want placeholder", got)
		}
	})

	t.Run("text truncated", func(t *testing.T) {
		rec := &recorder{reply: "{}"}
		NewAssistant(rec, WithEntityChars(10)).ExtractEntities(context.Background(), "T", strings.Repeat("é", 50))
		if !strings.Contains(rec.last.Prompt, "Text: "+strings.Repeat("é", 10)+"...\n") {
			t.Errorf("text should be cut to 10 runes, prompt: %q", rec.last.Prompt)
		}
	})
}

func TestAnswer(t *testing.T) {
	rec := &recorder{reply: "According to Paper 1, roots curl."}
	a := NewAssistant(rec)

	got, err := a.Answer(context.Background(), AnswerRequest{
		Question:   "How do roots grow in orbit?",
		Context:    "[Paper 1]\nTitle: Roots",
		Mode:       ModeAcademic,
		Shown:      3,
		CorpusSize: 607,
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if got != "According to Paper 1, roots curl." {
		t.Errorf("answer = %q", got)
	}
	if rec.last.Prompt != "How do roots grow in orbit?" {
		t.Errorf("user prompt = %q", rec.last.Prompt)
	}
	for _, want := range []string{"607 scientific papers", "[Paper 1]", "only 3 examples of the 607"} {
		if !strings.Contains(rec.last.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if rec.last.Temperature != answerTemperature || rec.last.MaxTokens != answerMaxTokens {
		t.Errorf("unexpected sampling params: %+v", rec.last)
	}

	t.Run("empty reply is a failure", func(t *testing.T) {
		got, err := NewAssistant(&recorder{}).Answer(context.Background(), AnswerRequest{Question: "q"})
		if !errors.Is(err, ErrCompletion) {
			t.Errorf("expected ErrCompletion, got %v", err)
		}
		if got != PlaceholderAnswer {
			t.Errorf("answer = %q, want placeholder", got)
		}
	})
}

func TestTruncateWithEllipsis(t *testing.T) {
	if got := truncateWithEllipsis("héllo wörld", 5); got != "héllo..." {
		t.Errorf("got %q", got)
	}
	if got := truncateWithEllipsis("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if n := utf8.RuneCountInString(truncateWithEllipsis(strings.Repeat("ж", 30), 20)); n != 23 {
		t.Errorf("rune count = %d, want 23", n)
	}
}

func TestExtractFromCodeBlock(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}", `{"a":1}`},
		{"```{}```", "{}"},
	}
	for _, tt := range tests {
		if got := extractFromCodeBlock(tt.in); got != tt.want {
			t.Errorf("extractFromCodeBlock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
