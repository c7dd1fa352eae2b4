package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"chatserver/models"
)

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

type chatCompletionError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// HTTPCompletionClient posts to {baseURL}/chat/completions with resty. It
// speaks the plain OpenAI wire format, so it also works with Perplexity,
// vLLM, Ollama and similar gateways.
type HTTPCompletionClient struct {
	http  *resty.Client
	model string
}

func NewHTTPCompletionClient(apiKey, baseURL, model string) *HTTPCompletionClient {
	return &HTTPCompletionClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json"),
		model: model,
	}
}

func (c *HTTPCompletionClient) Complete(ctx context.Context, turns []models.PromptTurn) (models.PromptTurn, error) {
	body := chatCompletionRequest{
		Model:    c.model,
		Messages: make([]chatCompletionMessage, 0, len(turns)),
	}
	for _, t := range turns {
		role, err := roleTag(t.Role)
		if err != nil {
			return models.PromptTurn{}, &CompletionError{Err: err}
		}
		body.Messages = append(body.Messages, chatCompletionMessage{Role: role, Content: t.Content})
	}

	var (
		result  chatCompletionResponse
		failure chatCompletionError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return models.PromptTurn{}, &CompletionError{Err: err}
	}
	if resp.IsError() {
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return models.PromptTurn{}, &CompletionError{Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode(), msg)}
	}
	if len(result.Choices) == 0 {
		return models.PromptTurn{}, &CompletionError{Err: errors.New("response contained no choices")}
	}

	return models.PromptTurn{
		Role:    models.RoleAssistant,
		Content: result.Choices[0].Message.Content,
	}, nil
}

var _ CompletionClient = (*HTTPCompletionClient)(nil)
