package models

// Conversation is a titled thread of chat turns.
type Conversation struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// ConversationView is what the presentation layer renders: every conversation
// for navigation plus the turns of the selected one.
type ConversationView struct {
	ConversationID *int64          `json:"conversation_id"`
	Title          string          `json:"title,omitempty"`
	Conversations  []*Conversation `json:"conversations"`
	Turns          []*ChatTurn     `json:"turns"`
}

// Exchange is the result of one orchestration step.
type Exchange struct {
	Conversation *Conversation `json:"conversation"`
	Turns        []*ChatTurn   `json:"turns"`
}
