// Package rewrite turns extracted article text into narration-ready text
// through an OpenAI chat completion.
package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/article-voice/internal/resilience"
)

// ErrMalformedResponse is returned when a 2xx reply has no usable message content
var ErrMalformedResponse = errors.New("malformed completion response")

// DefaultModel is the chat model used for rewriting
const DefaultModel = "gpt-4o"

const (
	instructionTurn = "Given text from a blog post:\n" +
		"- Remove any introductory statement or metadata\n" +
		"- Redact code blocks and replace them with a short technical explanation of their content. " +
		"Start with \"EDIT:\". End with \"END OF EDIT.\".\n" +
		"Emojis or other characters that cannot be pronounced should be removed.\n" +
		"Your response will be directly read of the user - so avoid any additional content besides the edited post\n\n" +
		"OK?"
	acknowledgementTurn = "Okay, just provide the text from the blog post and I'll make the necessary edits."
)

// APIError is a non-2xx reply from the completion endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Rewriter produces narration text from extracted article text
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Config holds the completion client settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the chat completion endpoint
type Client struct {
	client  *openai.Client
	model   string
	breaker *resilience.CircuitBreaker
}

// NewClient creates a completion client; breaker may be nil
func NewClient(cfg Config, breaker *resilience.CircuitBreaker) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:  openai.NewClientWithConfig(oc),
		model:   model,
		breaker: breaker,
	}
}

// Messages builds the three-turn prompt for text
func Messages(text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: instructionTurn},
		{Role: openai.ChatMessageRoleAssistant, Content: acknowledgementTurn},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
}

// Rewrite sends text through the completion endpoint and returns the first choice
func (c *Client) Rewrite(ctx context.Context, text string) (string, error) {
	if c.breaker == nil {
		return c.complete(ctx, text)
	}

	var edited string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		edited, err = c.complete(ctx, text)
		if err != nil && !IsUpstreamFailure(err) {
			return resilience.Neutral(err)
		}
		return err
	})
	return edited, err
}

// IsUpstreamFailure reports whether err says the completion service is
// unhealthy. Rejected requests and unusable replies to one request do not.
func IsUpstreamFailure(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) complete(ctx context.Context, text string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            c.model,
		Messages:         Messages(text),
		Temperature:      1,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("%w: missing message content", ErrMalformedResponse)
	}
	return content, nil
}

// Healthy reports false while the breaker is open
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	if c.breaker == nil {
		return true, nil
	}
	return c.breaker.Healthy(ctx)
}

// classify maps client errors onto APIError and ErrMalformedResponse
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Body: describe(apiErr)}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return fmt.Errorf("completion request failed: %w", err)
}

// describe renders the message with the type and code the API attached
func describe(e *openai.APIError) string {
	var attrs []string
	if e.Type != "" {
		attrs = append(attrs, "type: "+e.Type)
	}
	if e.Code != nil {
		attrs = append(attrs, fmt.Sprintf("code: %v", e.Code))
	}
	if len(attrs) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(attrs, ", "))
}
