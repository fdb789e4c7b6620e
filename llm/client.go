// Package llm talks to an OpenAI-compatible chat completions endpoint for
// schema-constrained extraction and free-form generation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/transport"
)

const ChatCompletionsPath = "/chat/completions"

const defaultMaxTokens = 2048

// ProviderError is returned when the completion API responds with a non-2xx status.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == 429
}

type Client struct {
	adapter core.TransportAdapter
	baseURL string
	apiKey  string
	model   string
}

type Option func(*Client)

func WithTransport(adapter core.TransportAdapter) Option {
	return func(c *Client) {
		if adapter != nil {
			c.adapter = adapter
		}
	}
}

func NewClient(cfg core.LLMConfig, opts ...Option) *Client {
	client := &Client{
		adapter: transport.NewRESTAdapter(nil),
		baseURL: strings.TrimSpace(cfg.BaseURL),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Extract asks for a completion constrained to req.Schema and returns the raw
// JSON document the model produced.
func (c *Client) Extract(ctx context.Context, req core.ExtractionRequest) (json.RawMessage, error) {
	name := strings.TrimSpace(req.SchemaName)
	if name == "" {
		name = "extraction"
	}
	wire := chatRequest{
		Model: c.modelName(),
		Messages: []chatMessage{
			{Role: "system", Content: "Respond only with JSON matching the provided schema."},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: floatPtr(0),
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   name,
				Strict: true,
				Schema: req.Schema,
			},
		},
	}
	content, err := c.complete(ctx, wire)
	if err != nil {
		return nil, err
	}
	content = stripCodeFence(content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("llm: extraction output is not valid json")
	}
	return json.RawMessage(content), nil
}

func (c *Client) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	wire := chatRequest{
		Model:     c.modelName(),
		MaxTokens: maxTokens,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		wire.Messages = append(wire.Messages, chatMessage{Role: "system", Content: system})
	}
	wire.Messages = append(wire.Messages, chatMessage{Role: "user", Content: req.Prompt})
	return c.complete(ctx, wire)
}

func (c *Client) complete(ctx context.Context, wire chatRequest) (string, error) {
	if c == nil || c.adapter == nil {
		return "", fmt.Errorf("llm: client is not configured")
	}
	req, err := transport.JSONRequest(transport.JoinURL(c.baseURL, ChatCompletionsPath), c.apiKey, wire)
	if err != nil {
		return "", err
	}
	res, err := c.adapter.Do(ctx, req)
	if err != nil {
		return "", err
	}
	if !transport.IsSuccess(res.StatusCode) {
		return "", decodeProviderError(res)
	}

	var decoded chatResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return "", fmt.Errorf("llm: decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("llm: completion response has no choices")
	}
	choice := decoded.Choices[0]
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return "", fmt.Errorf("llm: model refused: %s", refusal)
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

func (c *Client) modelName() string {
	if c == nil {
		return ""
	}
	return c.model
}

func decodeProviderError(res core.TransportResponse) error {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	providerErr := &ProviderError{StatusCode: res.StatusCode}
	if json.Unmarshal(res.Body, &envelope) == nil && envelope.Error.Message != "" {
		providerErr.Type = envelope.Error.Type
		providerErr.Message = envelope.Error.Message
		return providerErr
	}
	providerErr.Message = strings.TrimSpace(string(res.Body))
	return providerErr
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func floatPtr(value float64) *float64 {
	return &value
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Refusal string `json:"refusal,omitempty"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

var (
	_ core.StructuredExtractor = (*Client)(nil)
	_ core.TextGenerator       = (*Client)(nil)
)
