// Package llm wraps the generative completion service used for summaries,
// entity extraction and chat answers.
//
// Every helper in this package returns displayable text even when the
// completion call fails: callers get a placeholder plus the error, so a slow
// or broken upstream never takes a request down with it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Errors returned by completion calls.
var (
	// ErrTimeout means the completion did not finish within its budget.
	ErrTimeout = errors.New("completion timed out")

	// ErrCompletion wraps any other upstream failure.
	ErrCompletion = errors.New("completion failed")

	// ErrNotConfigured means no API key is available.
	ErrNotConfigured = errors.New("completion service not configured")
)

// Request is a single chat completion.
type Request struct {
	System      string // optional system message
	Prompt      string // user message
	Temperature float32
	MaxTokens   int
}

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Mode selects the audience of generated text.
type Mode string

const (
	ModeAcademic Mode = "academic"
	ModeOutreach Mode = "outreach"
)

// ParseMode parses a mode name. Empty means academic.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "academic", "research", "researcher":
		return ModeAcademic, nil
	case "outreach", "public", "student":
		return ModeOutreach, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want academic or outreach)", s)
	}
}
