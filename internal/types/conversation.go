package types

import "time"

const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

// Conversation is one entry of the conversation index. Key identifies the
// transport-side owner (for example "telegram:<chat>"); at most one active
// conversation exists per key.
type Conversation struct {
	ID        ConversationID  `json:"id"`
	Key       ConversationKey `json:"key"`
	Title     string          `json:"title,omitempty"`
	Status    string          `json:"status"`
	Trip      *TripContext    `json:"trip,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
