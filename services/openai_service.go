package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"chatserver/models"
)

// OpenAIClient calls the chat completions API through go-openai.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client for apiKey. baseURL may point at any
// OpenAI-compatible deployment; empty keeps the library default.
func NewOpenAIClient(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, turns []models.PromptTurn) (models.PromptTurn, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role, err := roleTag(t.Role)
		if err != nil {
			return models.PromptTurn{}, &CompletionError{Err: err}
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: t.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return models.PromptTurn{}, &CompletionError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return models.PromptTurn{}, &CompletionError{Err: errors.New("response contained no choices")}
	}

	return models.PromptTurn{
		Role:    models.RoleAssistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

var _ CompletionClient = (*OpenAIClient)(nil)
