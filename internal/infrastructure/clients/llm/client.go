package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/providers"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	"github.com/mycogrow/growroom-advisor/pkg/config"
	apperrors "github.com/mycogrow/growroom-advisor/pkg/errors"
)

const maxErrorBody = 512

// Client implements CompletionProvider against an OpenAI-compatible
// /chat/completions endpoint. It sends exactly one request per call.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new chat-completion client.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apperrors.NewConfigError("llm base url is required", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, apperrors.NewConfigError("llm model is required", nil)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete sends the prompt as a single system message.
func (c *Client) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperrors.NewValidationError("prompt is required")
	}

	payload := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "system", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		observability.RecordLLMRequest(ctx, c.model, 0, time.Since(start), 0, 0, err)
		return nil, apperrors.NewExternalError("llm request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		observability.RecordLLMRequest(ctx, c.model, resp.StatusCode, time.Since(start), 0, 0, statusErr)
		return nil, apperrors.NewExternalError(fmt.Sprintf("llm request failed with status %d", resp.StatusCode), statusErr)
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		observability.RecordLLMRequest(ctx, c.model, resp.StatusCode, time.Since(start), 0, 0, err)
		return nil, apperrors.NewExternalError("failed to decode llm response", err)
	}

	if len(envelope.Choices) == 0 || strings.TrimSpace(envelope.Choices[0].Message.Content) == "" {
		emptyErr := fmt.Errorf("response has no assistant content")
		observability.RecordLLMRequest(ctx, c.model, resp.StatusCode, time.Since(start), envelope.Usage.PromptTokens, envelope.Usage.CompletionTokens, emptyErr)
		return nil, apperrors.NewExternalError("llm response missing content", emptyErr)
	}

	observability.RecordLLMRequest(ctx, c.model, resp.StatusCode, time.Since(start), envelope.Usage.PromptTokens, envelope.Usage.CompletionTokens, nil)

	model := envelope.Model
	if model == "" {
		model = c.model
	}
	return &providers.CompletionResponse{
		Text:         envelope.Choices[0].Message.Content,
		Model:        model,
		FinishReason: envelope.Choices[0].FinishReason,
		PromptTokens: envelope.Usage.PromptTokens,
		OutputTokens: envelope.Usage.CompletionTokens,
	}, nil
}
