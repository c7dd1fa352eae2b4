package services

import (
	"context"
	"fmt"

	"chatserver/models"
)

// CompletionClient turns an ordered prompt into one assistant turn.
// Implementations are stateless and safe to share between requests; every
// failure is returned as *CompletionError and never retried.
type CompletionClient interface {
	Complete(ctx context.Context, turns []models.PromptTurn) (models.PromptTurn, error)
}

// roleTag is the only place a Role becomes a provider role string.
func roleTag(r models.Role) (string, error) {
	switch r {
	case models.RoleUser:
		return "user", nil
	case models.RoleAssistant:
		return "assistant", nil
	default:
		return "", fmt.Errorf("role %d cannot be sent to the model", int(r))
	}
}
