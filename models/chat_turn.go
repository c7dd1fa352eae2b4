package models

import "fmt"

// Role tags who authored a chat turn. Only RoleUser and RoleAssistant exist.
type Role int

const (
	RoleUser Role = iota + 1
	RoleAssistant
)

// ParseRole maps the stored/wire tag back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	default:
		return 0, fmt.Errorf("unknown chat role %q", s)
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// String returns the lowercase tag used in the database and on the wire.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid chat role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ChatTurn is one immutable message in a conversation. Turns of a
// conversation are ordered by ID.
type ChatTurn struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
}

// PromptTurn is the role/content pair handed to a completion backend.
type PromptTurn struct {
	Role    Role
	Content string
}

// PromptFromTurns keeps the chronological order of turns.
func PromptFromTurns(turns []*ChatTurn) []PromptTurn {
	prompt := make([]PromptTurn, 0, len(turns))
	for _, t := range turns {
		prompt = append(prompt, PromptTurn{Role: t.Role, Content: t.Content})
	}
	return prompt
}
