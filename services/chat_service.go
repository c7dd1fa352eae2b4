package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatserver/metrics"
	"chatserver/models"
)

// ChatOptions tunes the orchestrator.
type ChatOptions struct {
	// CompletionTimeout bounds each completion call. Zero means no bound
	// beyond the caller's context.
	CompletionTimeout time.Duration
	// SerializeSends makes concurrent sends to the same conversation wait
	// for each other instead of interleaving.
	SerializeSends bool
}

// ChatService runs one orchestration step per inbound user message:
// resolve, load history, store the user turn, complete, store the reply.
//
// The user turn and the assistant turn are committed independently. When
// the completion fails the user turn stays and is sent again as history on
// the next message; nothing is retried automatically.
type ChatService struct {
	store         MessageStore
	conversations *ConversationService
	completer     CompletionClient
	timeout       time.Duration
	locks         *SendLock
	log           zerolog.Logger
}

func NewChatService(store MessageStore, conversations *ConversationService, completer CompletionClient, opts ChatOptions, log zerolog.Logger) *ChatService {
	s := &ChatService{
		store:         store,
		conversations: conversations,
		completer:     completer,
		timeout:       opts.CompletionTimeout,
		log:           log.With().Str("component", "chat-service").Logger(),
	}
	if opts.SerializeSends {
		s.locks = NewSendLock()
	}
	return s
}

// Send appends message to the conversation (creating one when needed) and
// returns every turn of it in order.
//
// On a *CompletionError the returned Exchange is non-nil and holds the
// conversation with the stored user turn but no reply.
func (s *ChatService) Send(ctx context.Context, conversationID *int64, message string) (*models.Exchange, error) {
	if strings.TrimSpace(message) == "" {
		metrics.SendsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyMessage
	}

	if s.locks != nil && conversationID != nil {
		unlock := s.locks.Lock(*conversationID)
		defer unlock()
	}

	exchange, err := s.send(ctx, conversationID, message)
	var ce *CompletionError
	switch {
	case err == nil:
		metrics.SendsTotal.WithLabelValues("ok").Inc()
	case errors.As(err, &ce):
		metrics.SendsTotal.WithLabelValues("completion_error").Inc()
	default:
		metrics.SendsTotal.WithLabelValues("storage_error").Inc()
	}
	return exchange, err
}

func (s *ChatService) send(ctx context.Context, conversationID *int64, message string) (*models.Exchange, error) {
	conv, err := s.conversations.Resolve(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	log := s.log.With().Int64("conversation_id", conv.ID).Logger()

	history, err := s.store.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	userTurn, err := s.store.AppendTurn(ctx, conv.ID, models.RoleUser, message)
	if err != nil {
		return nil, err
	}
	turns := append(history, userTurn)

	// The title comes from the first turn, which exists now even on the
	// very first send.
	conv, err = s.conversations.RefreshTitle(ctx, conv)
	if err != nil {
		return nil, err
	}
	exchange := &models.Exchange{Conversation: conv, Turns: turns}

	reply, err := s.complete(ctx, models.PromptFromTurns(turns))
	if err != nil {
		log.Warn().Err(err).Int("prompt_turns", len(turns)).Msg("completion failed, user turn kept")
		return exchange, err
	}

	assistantTurn, err := s.store.AppendTurn(ctx, conv.ID, models.RoleAssistant, reply.Content)
	if err != nil {
		return exchange, err
	}
	exchange.Turns = append(turns, assistantTurn)

	log.Debug().Int("turns", len(exchange.Turns)).Msg("exchange stored")
	return exchange, nil
}

func (s *ChatService) complete(ctx context.Context, prompt []models.PromptTurn) (models.PromptTurn, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.completer.Complete(ctx, prompt)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var ce *CompletionError
		if !errors.As(err, &ce) {
			err = &CompletionError{Err: err}
		}
	}
	metrics.CompletionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return reply, err
}

// View loads the navigation list and, when conversationID names an existing
// conversation, its turns. An unknown id yields an empty selection.
func (s *ChatService) View(ctx context.Context, conversationID *int64) (*models.ConversationView, error) {
	conversations, err := s.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	view := &models.ConversationView{
		Conversations: conversations,
		Turns:         []*models.ChatTurn{},
	}
	if conversationID == nil {
		return view, nil
	}

	conv, err := s.store.GetConversation(ctx, *conversationID)
	if errors.Is(err, ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	turns, err := s.store.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	id := conv.ID
	view.ConversationID = &id
	view.Title = conv.Title
	view.Turns = turns
	return view, nil
}
