package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"chatserver/models"
)

// pgForeignKeyViolation is the SQLSTATE raised when a chat row points at a
// conversation that does not exist.
const pgForeignKeyViolation = "23503"

// PostgresStore persists conversations in the conversation/chat tables.
// Cascading deletes are enforced by the chat foreign key.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewPostgresStore(db *sql.DB, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: log.With().Str("component", "postgres-store").Logger(),
	}
}

func (s *PostgresStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title FROM conversation WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get conversation", err)
	}
	return &conv, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM conversation ORDER BY id`)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	defer rows.Close()

	conversations := make([]*models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title); err != nil {
			return nil, storageErr("scan conversation", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list conversations", err)
	}
	return conversations, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversation (title) VALUES ($1) RETURNING id, title`, title,
	).Scan(&conv.ID, &conv.Title)
	if err != nil {
		return nil, storageErr("create conversation", err)
	}
	s.log.Debug().Int64("conversation_id", conv.ID).Msg("created conversation")
	return &conv, nil
}

func (s *PostgresStore) UpdateConversationTitle(ctx context.Context, id int64, title string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx,
		`UPDATE conversation SET title = $1 WHERE id = $2 RETURNING id, title`, title, id,
	).Scan(&conv.ID, &conv.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("update conversation title", err)
	}
	return &conv, nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, conversationID int64) ([]*models.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content
		FROM chat
		WHERE conversation_id = $1
		ORDER BY id`, conversationID)
	if err != nil {
		return nil, storageErr("list turns", err)
	}
	defer rows.Close()

	turns := make([]*models.ChatTurn, 0)
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, storageErr("scan turn", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list turns", err)
	}
	return turns, nil
}

func (s *PostgresStore) GetFirstTurn(ctx context.Context, conversationID int64) (*models.ChatTurn, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, role, content
		FROM chat
		WHERE conversation_id = $1
		ORDER BY id
		LIMIT 1`, conversationID)
	turn, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get first turn", err)
	}
	return turn, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, conversationID int64, role models.Role, content string) (*models.ChatTurn, error) {
	if !role.Valid() {
		return nil, &StorageError{Op: "append turn", Err: fmt.Errorf("invalid role %d", int(role))}
	}

	turn := &models.ChatTurn{ConversationID: conversationID, Role: role, Content: content}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat (content, role, conversation_id)
		VALUES ($1, $2::chat_role, $3)
		RETURNING id`, content, role.String(), conversationID,
	).Scan(&turn.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
			return nil, ErrNotFound
		}
		return nil, storageErr("append turn", err)
	}
	s.log.Debug().
		Int64("conversation_id", conversationID).
		Int64("turn_id", turn.ID).
		Str("role", role.String()).
		Msg("appended turn")
	return turn, nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete conversation", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*models.ChatTurn, error) {
	var (
		turn models.ChatTurn
		role sql.NullString
	)
	if err := row.Scan(&turn.ID, &turn.ConversationID, &role, &turn.Content); err != nil {
		return nil, err
	}
	if !role.Valid {
		return nil, fmt.Errorf("chat %d has no role", turn.ID)
	}
	parsed, err := models.ParseRole(role.String)
	if err != nil {
		return nil, err
	}
	turn.Role = parsed
	return &turn, nil
}

var _ MessageStore = (*PostgresStore)(nil)
