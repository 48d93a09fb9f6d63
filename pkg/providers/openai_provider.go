// Package providers talks to the OpenAI chat completions endpoint.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/sipeed/clawcord/pkg/config"
)

const completionsPath = "chat/completions"

// ProviderError is a typed error for the providers package.
type ProviderError string

func (e ProviderError) Error() string { return string(e) }

const (
	ErrMissingAPIKey ProviderError = "OPENAI_API_KEY is not set: refusing to send an unauthenticated completion request"
	ErrNoChoices     ProviderError = "completion response has no choices"
)

// Completer sends a chat request and returns the raw response body.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// CompletionClient issues single, unretried POSTs to the completions endpoint.
type CompletionClient struct {
	apiKey string
	client openai.Client
}

// NewCompletionClient builds a client from cfg. Extra request options are
// appended last and win over the defaults.
func NewCompletionClient(cfg config.OpenAIConfig, opts ...option.RequestOption) *CompletionClient {
	base := cfg.BaseURL
	if base == "" {
		base = config.DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	return &CompletionClient{
		apiKey: cfg.APIKey,
		client: openai.NewClient(reqOpts...),
	}
}

// Complete posts req and returns the response body unparsed. Non-2xx answers
// come back as *openai.Error; nothing is retried.
func (c *CompletionClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var raw []byte
	if err := c.client.Post(ctx, completionsPath, body, &raw); err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	return string(raw), nil
}

// Completion is the part of a completion response the bot acts on.
type Completion struct {
	ID               string
	Model            string
	Text             string
	FinishReason     string
	PromptTokens     int64
	CompletionTokens int64
}

// ParseCompletion decodes a raw response body and extracts the first choice.
func ParseCompletion(raw string) (*Completion, error) {
	var resp openai.ChatCompletion
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]
	return &Completion{
		ID:               resp.ID,
		Model:            resp.Model,
		Text:             choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Ensure CompletionClient implements Completer
var _ Completer = (*CompletionClient)(nil)
