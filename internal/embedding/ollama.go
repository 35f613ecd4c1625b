package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spacebio/engine/internal/metrics"
)

const (
	// DefaultOllamaURL is the default Ollama API endpoint.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultModel is the Ollama build of all-MiniLM-L6-v2, the model the
	// published corpus vectors were produced with.
	DefaultModel = "all-minilm:l6-v2"

	// DefaultDimensions is the output size of all-MiniLM-L6-v2.
	DefaultDimensions = 384

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 30 * time.Second

	apiPathTags       = "/api/tags"
	apiPathEmbeddings = "/api/embeddings"

	providerOllama = "ollama"
)

// OllamaProvider generates embeddings using the Ollama API.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithBaseURL sets the Ollama API base URL. Bare host:port values such as
// OLLAMA_HOST=0.0.0.0:11434 are accepted.
func WithBaseURL(url string) OllamaOption {
	return func(p *OllamaProvider) {
		p.baseURL = NormalizeOllamaHost(url)
	}
}

// WithModel sets the embedding model.
func WithModel(model string) OllamaOption {
	return func(p *OllamaProvider) {
		p.model = model
	}
}

// WithDimensions sets the expected vector dimensions.
func WithDimensions(dims int) OllamaOption {
	return func(p *OllamaProvider) {
		p.dimensions = dims
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) OllamaOption {
	return func(p *OllamaProvider) {
		p.client.Timeout = timeout
	}
}

// NewOllamaProvider creates a new Ollama embedding provider.
func NewOllamaProvider(opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    DefaultOllamaURL,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		client:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NormalizeOllamaHost turns an OLLAMA_HOST style value into a base URL.
func NormalizeOllamaHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return DefaultOllamaURL
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	host = strings.TrimRight(host, "/")

	// 0.0.0.0 is a bind address, not somewhere a client can connect.
	host = strings.Replace(host, "://0.0.0.0", "://localhost", 1)

	// Default port when none is given.
	rest := host[strings.Index(host, "://")+3:]
	if !strings.Contains(rest, ":") && !strings.Contains(rest, "/") {
		host += ":11434"
	}
	return host
}

// Embed generates an embedding for the given text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	start := time.Now()
	vec, err := p.embed(ctx, text)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerOllama, p.model, "error").Inc()
		return Embedding{}, err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(providerOllama, p.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerOllama, p.model).Observe(time.Since(start).Seconds())
	return Embedding{Vector: vec}, nil
}

func (p *OllamaProvider) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+apiPathEmbeddings, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// Keep context errors visible to callers that distinguish timeouts.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ollama embed: %w", ctxErr)
		}
		return nil, fmt.Errorf("ollama embed: %v: %w", err, ErrProvider)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s: %w",
			resp.StatusCode, formatErrorBody(resp.Body), ErrProvider)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %v: %w", err, ErrProvider)
	}

	if len(result.Embedding) != p.dimensions {
		return nil, fmt.Errorf("unexpected embedding dimensions: got %d, want %d: %w",
			len(result.Embedding), p.dimensions, ErrProvider)
	}

	return result.Embedding, nil
}

// ModelName returns the name of the embedding model.
func (p *OllamaProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *OllamaProvider) Dimensions() int {
	return p.dimensions
}

// HealthCheck reports whether Ollama is reachable and has the model pulled.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	ok, err := p.HasModel(ctx)
	if err != nil {
		return fmt.Errorf("ollama is not running at %s: %w", p.baseURL, err)
	}
	if !ok {
		return fmt.Errorf("model %s not found (run: ollama pull %s)", p.model, p.model)
	}
	return nil
}

// HasModel checks if the configured model is available in Ollama.
// A model configured without a tag matches the ":latest" tag.
func (p *OllamaProvider) HasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+apiPathTags, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var result ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}

	for _, m := range result.Models {
		if m.Name == p.model || m.Name == p.model+":latest" {
			return true, nil
		}
	}
	return false, nil
}

// formatErrorBody reads and formats the response body for error messages.
func formatErrorBody(body io.Reader) string {
	respBody, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	return strings.TrimSpace(string(respBody))
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

type ollamaModel struct {
	Name string `json:"name"`
}
