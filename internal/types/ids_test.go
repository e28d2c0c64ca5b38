// internal/types/ids_test.go
package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratedIDsAreUUIDs(t *testing.T) {
	for _, id := range []string{string(NewConversationID()), string(NewMessageID())} {
		_, err := uuid.Parse(id)
		require.NoError(t, err, id)
	}
	assert.NotEqual(t, NewMessageID(), NewMessageID())
}

func TestNewConversationKey(t *testing.T) {
	assert.Equal(t, ConversationKey("telegram:123456"), NewConversationKey("telegram", "123456"))
	assert.Equal(t, ConversationKey("api"), NewConversationKey("api"))
}

func TestNewToolCallID(t *testing.T) {
	id := NewToolCallID()
	assert.Regexp(t, `^call_[0-9a-f]{24}$`, id)
	assert.NotEqual(t, id, NewToolCallID())
}
