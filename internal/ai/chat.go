package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/immo-leads/internal/pkg/httpretry"
)

// ErrNotConfigured is returned when a client has no API key.
var ErrNotConfigured = errors.New("ai: client not configured")

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion call. Model falls back to the client's
// default.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// JSON asks OpenAI for a JSON object response. Ignored by Perplexity.
	JSON bool `json:"-"`
}

// ChatResponse is the first choice of a completion plus what we log.
type ChatResponse struct {
	Content      string   `json:"content"`
	Model        string   `json:"model"`
	FinishReason string   `json:"finish_reason"`
	Citations    []string `json:"citations,omitempty"` // Perplexity only
	PromptTokens int      `json:"prompt_tokens"`
	OutputTokens int      `json:"output_tokens"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Provider   string
	HTTPStatus int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.HTTPStatus, e.Type, e.Message)
}

// Config configures a chat client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatClient talks to an OpenAI-compatible /chat/completions endpoint.
type ChatClient struct {
	provider string
	cfg      Config
	http     httpretry.HTTPDoer
}

// NewOpenAI creates a client for api.openai.com.
func NewOpenAI(cfg Config) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return newChatClient("openai", cfg)
}

// NewPerplexity creates a client for api.perplexity.ai.
func NewPerplexity(cfg Config) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	return newChatClient("perplexity", cfg)
}

func newChatClient(provider string, cfg Config) *ChatClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ChatClient{
		provider: provider,
		cfg:      cfg,
		http:     httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout}, 2),
	}
}

// WithHTTPClient replaces the transport, for tests.
func (c *ChatClient) WithHTTPClient(doer httpretry.HTTPDoer) *ChatClient {
	c.http = doer
	return c
}

// Configured reports whether an API key is set.
func (c *ChatClient) Configured() bool { return c != nil && c.cfg.APIKey != "" }

// Provider returns "openai" or "perplexity".
func (c *ChatClient) Provider() string { return c.provider }

type wireRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Citations []string `json:"citations"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete runs a chat completion and returns the first choice.
func (c *ChatClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%s: no messages", c.provider)
	}

	wr := wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if wr.Model == "" {
		wr.Model = c.cfg.Model
	}
	if req.JSON && c.provider == "openai" {
		wr.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", c.provider, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.provider, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Provider: c.provider, HTTPStatus: resp.StatusCode}
		var we wireError
		if json.Unmarshal(raw, &we) == nil && we.Error.Message != "" {
			apiErr.Type, apiErr.Message = we.Error.Type, we.Error.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}

	var out wireResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.provider, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty response", c.provider)
	}
	return &ChatResponse{
		Content:      strings.TrimSpace(out.Choices[0].Message.Content),
		Model:        out.Model,
		FinishReason: out.Choices[0].FinishReason,
		Citations:    out.Citations,
		PromptTokens: out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}

// StripCodeFence removes a surrounding ```json ... ``` block that models
// sometimes add around JSON answers.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
