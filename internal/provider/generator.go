package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/d8vjr/docqa-go/internal/rag"
)

// Generator normalizes every chat backend to a plain prompt-in/text-out
// call. It is safe for concurrent use.
type Generator struct {
	chat model.ToolCallingChatModel
}

// NewGenerator wraps a ChatModel in a Generator.
func NewGenerator(chat model.ToolCallingChatModel) (*Generator, error) {
	if chat == nil {
		return nil, fmt.Errorf("provider: chat model must not be nil")
	}
	return &Generator{chat: chat}, nil
}

// Generate sends the prompt as a single user message and returns the model's
// text response. Backend failures are wrapped in rag.ErrGenerationUnavailable
// so callers can distinguish an unreachable model from an answer.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("provider: generation failed: %w: %v", rag.ErrGenerationUnavailable, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("provider: model returned an empty response: %w", rag.ErrGenerationUnavailable)
	}
	return msg.Content, nil
}
