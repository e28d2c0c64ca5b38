package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/wayfarer/internal/types"
)

// ErrNotFound is returned when no conversation matches.
var ErrNotFound = errors.New("conversation not found")

// ConversationStore is a JSON-file-backed conversation index stored in
// conversations/index.json.
type ConversationStore struct {
	root string
	mu   sync.RWMutex
	now  func() time.Time
}

// NewConversationStore creates a new file-backed ConversationStore rooted at the given directory.
func NewConversationStore(root string) *ConversationStore {
	return &ConversationStore{root: root, now: time.Now}
}

func (s *ConversationStore) dir() string {
	return filepath.Join(s.root, "conversations")
}

func (s *ConversationStore) indexPath() string {
	return filepath.Join(s.dir(), "index.json")
}

func (s *ConversationStore) loadIndex() ([]*types.Conversation, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read conversation index: %w", err)
	}
	var convs []*types.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("unmarshal conversation index: %w", err)
	}
	return convs, nil
}

// saveIndex marshals with indentation and writes atomically.
func (s *ConversationStore) saveIndex(convs []*types.Conversation) error {
	data, err := json.MarshalIndent(convs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation index: %w", err)
	}
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return fmt.Errorf("create conversations dir: %w", err)
	}

	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

func active(convs []*types.Conversation, key types.ConversationKey) *types.Conversation {
	for _, c := range convs {
		if c.Key == key && c.Status == types.ConversationActive {
			return c
		}
	}
	return nil
}

func (s *ConversationStore) newConversation(key types.ConversationKey) *types.Conversation {
	now := s.now()
	id := types.NewConversationID()
	if key == "" {
		key = types.NewConversationKey("api", string(id))
	}
	return &types.Conversation{
		ID:        id,
		Key:       key,
		Status:    types.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Create starts a conversation that no transport key refers to yet.
func (s *ConversationStore) Create(_ context.Context) (*types.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	conv := s.newConversation("")
	if err := s.saveIndex(append(convs, conv)); err != nil {
		return nil, err
	}
	return conv, nil
}

// ResolveOrCreate returns the active conversation for key, creating one if needed.
func (s *ConversationStore) ResolveOrCreate(_ context.Context, key types.ConversationKey) (*types.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	if existing := active(convs, key); existing != nil {
		return existing, nil
	}

	conv := s.newConversation(key)
	if err := s.saveIndex(append(convs, conv)); err != nil {
		return nil, err
	}
	return conv, nil
}

// Reset archives the active conversation for key and starts a new one. The
// trip context carries over.
func (s *ConversationStore) Reset(_ context.Context, key types.ConversationKey) (*types.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	conv := s.newConversation(key)
	if old := active(convs, key); old != nil {
		old.Status = types.ConversationArchived
		old.UpdatedAt = conv.CreatedAt
		conv.Trip = old.Trip
	}
	if err := s.saveIndex(append(convs, conv)); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get returns the conversation with the given ID.
func (s *ConversationStore) Get(_ context.Context, id types.ConversationID) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns all conversations, most recently updated first.
func (s *ConversationStore) List(_ context.Context) ([]*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

// Update persists changes to the given conversation, setting UpdatedAt to now.
func (s *ConversationStore) Update(_ context.Context, conv *types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := s.loadIndex()
	if err != nil {
		return err
	}
	for i, c := range convs {
		if c.ID == conv.ID {
			conv.UpdatedAt = s.now()
			convs[i] = conv
			return s.saveIndex(convs)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, conv.ID)
}

// Touch bumps UpdatedAt and sets the title if the conversation has none.
func (s *ConversationStore) Touch(ctx context.Context, id types.ConversationID, title string) error {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if conv.Title == "" {
		conv.Title = title
	}
	return s.Update(ctx, conv)
}
