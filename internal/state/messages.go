package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/wayfarer/internal/types"
)

// ErrInvalidID is returned for conversation ids that cannot name a directory.
var ErrInvalidID = errors.New("invalid conversation id")

const maxLineBytes = 4 * 1024 * 1024

// MessageStore is a JSONL-backed append-only message log.
// Messages are stored per conversation in conversations/<id>/messages.jsonl.
type MessageStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.ConversationID]*sync.Mutex
}

// NewMessageStore creates a new file-backed MessageStore rooted at the given directory.
func NewMessageStore(root string) *MessageStore {
	return &MessageStore{
		root:  root,
		locks: make(map[types.ConversationID]*sync.Mutex),
	}
}

// getLock returns the per-conversation mutex, creating one if it doesn't exist.
func (s *MessageStore) getLock(id types.ConversationID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[id] = lock
	return lock
}

func (s *MessageStore) messagesPath(id types.ConversationID) string {
	return filepath.Join(s.root, "conversations", string(id), "messages.jsonl")
}

func validID(id types.ConversationID) error {
	if id == "" || id == "." || id == ".." || filepath.Base(string(id)) != string(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Append adds messages to the conversation's log in order.
func (s *MessageStore) Append(_ context.Context, msgs ...*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	id := msgs[0].ConversationID
	if err := validID(id); err != nil {
		return err
	}

	var buf []byte
	for _, m := range msgs {
		if m.ConversationID != id {
			return fmt.Errorf("append: messages span conversations %s and %s", id, m.ConversationID)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.messagesPath(id)), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	f, err := os.OpenFile(s.messagesPath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return nil
}

// Tail returns the last limit messages of a conversation, oldest first. A
// limit of zero or less returns every message.
func (s *MessageStore) Tail(_ context.Context, id types.ConversationID, limit int) ([]*types.Message, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(s.messagesPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var msgs []*types.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var m types.Message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages file: %w", err)
	}

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Count returns the number of messages in a conversation.
func (s *MessageStore) Count(_ context.Context, id types.ConversationID) (int, error) {
	if err := validID(id); err != nil {
		return 0, err
	}
	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(s.messagesPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan messages file: %w", err)
	}
	return count, nil
}
