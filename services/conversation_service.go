package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"chatserver/metrics"
	"chatserver/models"
)

// ConversationService decides which conversation a message belongs to and
// keeps its title in line with the first turn.
type ConversationService struct {
	store MessageStore
	log   zerolog.Logger
}

func NewConversationService(store MessageStore, log zerolog.Logger) *ConversationService {
	return &ConversationService{
		store: store,
		log:   log.With().Str("component", "conversation-service").Logger(),
	}
}

// Resolve returns the conversation with the given id, or a new one when id
// is nil or no longer exists. The title is recomputed either way.
func (s *ConversationService) Resolve(ctx context.Context, id *int64) (*models.Conversation, error) {
	var conv *models.Conversation
	if id != nil {
		found, err := s.store.GetConversation(ctx, *id)
		switch {
		case errors.Is(err, ErrNotFound):
			s.log.Info().Int64("conversation_id", *id).Msg("conversation not found, starting a new one")
		case err != nil:
			return nil, err
		default:
			conv = found
		}
	}

	if conv == nil {
		created, err := s.store.CreateConversation(ctx, "")
		if err != nil {
			return nil, err
		}
		metrics.ConversationsCreated.Inc()
		conv = created
	}

	return s.RefreshTitle(ctx, conv)
}

// RefreshTitle re-derives the title from the first turn and stores it.
// Calling it repeatedly is harmless.
func (s *ConversationService) RefreshTitle(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	first, err := s.store.GetFirstTurn(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateConversationTitle(ctx, conv.ID, DeriveTitle(conv.ID, first))
}

// DeriveTitle is the first turn's content verbatim, or the conversation id
// when there are no turns yet.
func DeriveTitle(conversationID int64, first *models.ChatTurn) string {
	if first == nil {
		return strconv.FormatInt(conversationID, 10)
	}
	return first.Content
}
