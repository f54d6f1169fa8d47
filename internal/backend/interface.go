package backend

import (
	"context"

	openai "github.com/danilofalcao/ai-relay/internal/api/openai/v1"
)

// Backend defines the interface that every upstream chat-completion provider implements
type Backend interface {
	// Name returns the name of the backend
	Name() string

	// ChatCompletion sends one non-streaming completion request upstream. A
	// returned response always carries at least one choice.
	ChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
}
