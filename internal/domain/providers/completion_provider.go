package providers

import (
	"context"
)

// CompletionRequest is a single-message chat completion call.
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse carries the assistant text and call accounting.
type CompletionResponse struct {
	Text         string
	Model        string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// CompletionProvider sends one prompt to a language model.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}
