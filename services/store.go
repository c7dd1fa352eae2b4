package services

import (
	"context"

	"chatserver/models"
)

// MessageStore is the durable home of conversations and their turns.
// Every mutating call is committed before it returns. Implementations are
// safe for concurrent use.
type MessageStore interface {
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	// ListConversations returns conversations in insertion order.
	ListConversations(ctx context.Context) ([]*models.Conversation, error)
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id int64, title string) (*models.Conversation, error)

	// ListTurns returns the turns of a conversation oldest first.
	ListTurns(ctx context.Context, conversationID int64) ([]*models.ChatTurn, error)
	// GetFirstTurn returns nil, nil when the conversation has no turns.
	GetFirstTurn(ctx context.Context, conversationID int64) (*models.ChatTurn, error)
	AppendTurn(ctx context.Context, conversationID int64, role models.Role, content string) (*models.ChatTurn, error)

	// DeleteConversation removes the conversation and all of its turns.
	DeleteConversation(ctx context.Context, id int64) error
	Close() error
}
