// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ConversationKey string
type ConversationID string
type MessageID string

func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// NewToolCallID returns an id for tool calls the model did not label.
func NewToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

func NewConversationKey(parts ...string) ConversationKey {
	return ConversationKey(strings.Join(parts, ":"))
}
