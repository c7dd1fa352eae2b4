package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chatserver/models"
)

// MemoryStore keeps everything in process memory. It is used for local
// development (STORE_DRIVER=memory) and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	nextConvID    int64
	nextTurnID    int64
	conversations map[int64]*models.Conversation
	turns         map[int64][]*models.ChatTurn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[int64]*models.Conversation),
		turns:         make(map[int64][]*models.ChatTurn),
	}
}

func (s *MemoryStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	return &c, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		c := *conv
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConvID++
	conv := &models.Conversation{ID: s.nextConvID, Title: title}
	s.conversations[conv.ID] = conv
	c := *conv
	return &c, nil
}

func (s *MemoryStore) UpdateConversationTitle(ctx context.Context, id int64, title string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	conv.Title = title
	c := *conv
	return &c, nil
}

func (s *MemoryStore) ListTurns(ctx context.Context, conversationID int64) ([]*models.ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[conversationID]
	out := make([]*models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		tt := *t
		out = append(out, &tt)
	}
	return out, nil
}

func (s *MemoryStore) GetFirstTurn(ctx context.Context, conversationID int64) (*models.ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[conversationID]
	if len(turns) == 0 {
		return nil, nil
	}
	first := *turns[0]
	return &first, nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, conversationID int64, role models.Role, content string) (*models.ChatTurn, error) {
	if !role.Valid() {
		return nil, &StorageError{Op: "append turn", Err: fmt.Errorf("invalid role %d", int(role))}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	s.nextTurnID++
	turn := &models.ChatTurn{
		ID:             s.nextTurnID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	t := *turn
	return &t, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.turns, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ MessageStore = (*MemoryStore)(nil)
