package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

// Roles of a chat turn
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FallbackText is the reply used when the backend answers without content
const FallbackText = "Ошибка AI"

// ErrNoAPIKey is returned when no completion API key is configured
var ErrNoAPIKey = errors.New("no OpenAI API key")

// ChatMessage is one role-tagged turn of a conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the assistant's next turn
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// OpenAIConfig configures OpenAIClient
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAIClient calls the chat completions endpoint
type OpenAIClient struct {
	client *fasthttp.Client
	cfg    OpenAIConfig
}

// NewOpenAIClient creates a completion client
func NewOpenAIClient(client *fasthttp.Client, cfg OpenAIConfig) *OpenAIClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIClient{client: client, cfg: cfg}
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends messages and returns the first choice. A response without
// content, including an API error body, yields FallbackText.
func (c *OpenAIClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("error encoding completion request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + "/chat/completions")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.SetBody(body)

	if err := c.client.Do(req, resp); err != nil {
		return "", fmt.Errorf("error calling completion API: %w", err)
	}

	var data completionResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return "", fmt.Errorf("error decoding completion response (status %d): %w", resp.StatusCode(), err)
	}
	if len(data.Choices) == 0 || data.Choices[0].Message.Content == "" {
		return FallbackText, nil
	}
	return data.Choices[0].Message.Content, nil
}
