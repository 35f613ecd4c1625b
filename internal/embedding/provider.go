package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider generates embeddings from text.
type Provider interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) (Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}

// HealthChecker is implemented by providers that can report whether their
// backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Provider kinds accepted by New.
const (
	KindOllama = "ollama"
	KindOpenAI = "openai"
)

// Settings selects and configures a provider.
type Settings struct {
	Kind       string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// New builds the provider named by s.Kind.
func New(s Settings) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", KindOllama:
		var opts []OllamaOption
		if s.BaseURL != "" {
			opts = append(opts, WithBaseURL(s.BaseURL))
		}
		if s.Model != "" {
			opts = append(opts, WithModel(s.Model))
		}
		if s.Dimensions > 0 {
			opts = append(opts, WithDimensions(s.Dimensions))
		}
		if s.Timeout > 0 {
			opts = append(opts, WithTimeout(s.Timeout))
		}
		return NewOllamaProvider(opts...), nil
	case KindOpenAI:
		if s.Model == "" {
			return nil, fmt.Errorf("openai embedding provider requires a model")
		}
		if s.Dimensions <= 0 {
			return nil, fmt.Errorf("openai embedding provider requires dimensions")
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want %s or %s)", s.Kind, KindOllama, KindOpenAI)
	}
}
