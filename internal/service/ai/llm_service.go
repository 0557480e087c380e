// Package ai wraps the chat model behind the single Complete call the turn
// orchestrator depends on. Tool specs are bound once at construction; tool
// selection is left to the provider's default ("auto").
package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/jmcpheron/jcn-bot/internal/config"
)

// Service owns the configured chat model with the agent's tools bound.
type Service struct {
	chatModel model.ChatModel
}

// NewService creates the ark chat model from configuration and binds the
// supplied tool specs.
func NewService(ctx context.Context, cfg config.AIConfig, tools []*schema.ToolInfo) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	if len(tools) > 0 {
		if err := chatModel.BindTools(tools); err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	return &Service{chatModel: chatModel}, nil
}

// Complete runs one model invocation over the assembled messages. This is the
// only blocking network call in a turn.
func (s *Service) Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("model invocation failed: %w", err)
	}

	log.Printf("[ai] completion: content=%d bytes, tool_calls=%d", len(response.Content), len(response.ToolCalls))
	return response, nil
}
