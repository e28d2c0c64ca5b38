package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/user/wayfarer/internal/types"
)

func TestMessageStore(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	ctx := context.Background()
	conv := types.NewConversationID()

	user := types.NewUserMessage(conv, "hotels in Paris?")
	assistant := types.NewAssistantMessage(conv)
	assistant.Content = "Try Hotel Lutetia."
	assistant.Mode = types.ModeAsk
	assistant.ToolCalls = []types.ToolCall{{
		ID:     "c1",
		Name:   types.ToolSearchHotels,
		Input:  json.RawMessage(`{"city":"Paris"}`),
		Result: types.Succeeded(&types.HotelsResult{City: "Paris", Hotels: []types.HotelOffer{{Name: "Hotel Lutetia"}}}),
	}}

	if err := store.Append(ctx, user, assistant); err != nil {
		t.Fatal(err)
	}

	msgs, err := store.Tail(ctx, conv, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[1].Role != types.RoleAssistant {
		t.Errorf("messages out of order: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	hotels, ok := msgs[1].ToolCalls[0].Result.Data.(*types.HotelsResult)
	if !ok || hotels.Hotels[0].Name != "Hotel Lutetia" {
		t.Errorf("tool result payload not restored: %#v", msgs[1].ToolCalls[0].Result.Data)
	}

	count, err := store.Count(ctx, conv)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestMessageStoreTailLimit(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	ctx := context.Background()
	conv := types.NewConversationID()

	for i := range 5 {
		if err := store.Append(ctx, types.NewUserMessage(conv, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := store.Tail(ctx, conv, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Content != "m3" || msgs[1].Content != "m4" {
		t.Errorf("unexpected tail: %v", msgs)
	}

	all, err := store.Tail(ctx, conv, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("expected all 5 messages, got %d", len(all))
	}
}

func TestMessageStoreMissingConversation(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	msgs, err := store.Tail(context.Background(), "nope", 10)
	if err != nil || msgs != nil {
		t.Errorf("expected empty result, got %v, %v", msgs, err)
	}
}

func TestMessageStoreRejectsPathIDs(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	for _, id := range []types.ConversationID{"", "..", "../etc", "a/b"} {
		if _, err := store.Tail(context.Background(), id, 1); !errors.Is(err, ErrInvalidID) {
			t.Errorf("id %q: expected ErrInvalidID, got %v", id, err)
		}
	}
}

func TestMessageStoreConcurrentAppend(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	ctx := context.Background()
	conv := types.NewConversationID()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Append(ctx, types.NewUserMessage(conv, fmt.Sprintf("m%d", i))); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	count, err := store.Count(ctx, conv)
	if err != nil {
		t.Fatal(err)
	}
	if count != 20 {
		t.Errorf("expected 20 messages, got %d", count)
	}
}
