package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/relevar/relevar/internal/domain"
)

var _ domain.Expander = (*Expander)(nil)

const expandSystemPrompt = "Expand the search query with closely related terms, " +
	"synonyms, and domain phrasing. Keep the original words. " +
	"Reply with the expanded query text only."

// Expander rewrites queries through a chat completion so keyword search can
// match vocabulary the caller did not type. Failures are returned to the
// caller, which falls back to the original query.
type Expander struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// NewExpander creates a query expander on the same API credentials as the
// embedder. model is the chat model, not the embedding model.
func NewExpander(cfg *Config, model string) *Expander {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Expander{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		user:     cfg.User,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Expand returns an expanded form of the query.
func (e *Expander) Expand(ctx context.Context, query string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: expandSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0.2,
		MaxTokens:   120,
		User:        e.user,
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty expansion response: %w", domain.ErrProviderUnavailable)
	}

	expanded := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`))
	if expanded == "" {
		return "", fmt.Errorf("blank expansion response: %w", domain.ErrProviderUnavailable)
	}

	e.logger.Debug("Expanded query",
		zap.String("query", query), zap.String("expanded", expanded))
	return expanded, nil
}
