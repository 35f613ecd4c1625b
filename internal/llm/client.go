package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/spacebio/engine/internal/metrics"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the Groq-hosted model used for all generation.
	DefaultModel = "llama-3.3-70b-versatile"

	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 60 * time.Second

	// DefaultRequestsPerMinute matches Groq's free-tier limit.
	DefaultRequestsPerMinute = 30

	// APIKeyEnv is consulted when no key is configured explicitly.
	APIKeyEnv = "GROQ_API_KEY"
)

// Client is a rate-limited chat completion client for OpenAI-compatible APIs.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	limiter *rate.Limiter

	client *openai.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		if key != "" {
			c.apiKey = key
		}
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel sets the completion model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequestsPerMinute sets the client-side rate limit. Zero disables it.
func WithRequestsPerMinute(n int) ClientOption {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// NewClient creates a completion client. The API key defaults to $GROQ_API_KEY.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  os.Getenv(APIKeyEnv),
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Every(time.Minute/DefaultRequestsPerMinute), 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = &http.Client{}
	c.client = openai.NewClientWithConfig(cfg)
	return c
}

// Model returns the completion model name.
func (c *Client) Model() string {
	return c.model
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Complete sends one chat completion and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%w: set %s", ErrNotConfigured, APIKeyEnv)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues(c.model, "timeout").Inc()
		return "", fmt.Errorf("%w: waiting for rate limiter: %v", ErrTimeout, err)
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	metrics.CompletionRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.CompletionRequestsTotal.WithLabelValues(c.model, "timeout").Inc()
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		metrics.CompletionRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", describeAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.CompletionRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("%w: response has no choices", ErrCompletion)
	}

	metrics.CompletionRequestsTotal.WithLabelValues(c.model, "success").Inc()
	if resp.Usage.TotalTokens > 0 {
		metrics.CompletionTokensTotal.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.CompletionTokensTotal.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// describeAPIError turns a go-openai error into an ErrCompletion.
func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: API error %d: %s", ErrCompletion, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: request error %d: %s", ErrCompletion, reqErr.HTTPStatusCode, strings.TrimSpace(string(reqErr.Body)))
	}
	return fmt.Errorf("%w: %v", ErrCompletion, err)
}
