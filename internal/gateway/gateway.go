// Package gateway admits chat turns, loads their history from the transcript
// store and persists the finished exchange once the event stream ends.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/user/wayfarer/internal/metrics"
	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxTitleRunes       = 60
)

// errUnterminated is recorded when the runtime's stream closes without a
// done or error event.
var errUnterminated = errors.New("turn ended without a final event")

// Turns starts orchestrated turns. *runtime.Runtime satisfies it.
type Turns interface {
	StartTurn(ctx context.Context, req runtime.TurnRequest) (<-chan types.Event, error)
}

// Messages is the transcript store the gateway reads and appends to.
type Messages interface {
	Append(ctx context.Context, msgs ...*types.Message) error
	Tail(ctx context.Context, id types.ConversationID, limit int) ([]*types.Message, error)
}

// Conversations is the conversation index.
type Conversations interface {
	Create(ctx context.Context) (*types.Conversation, error)
	ResolveOrCreate(ctx context.Context, key types.ConversationKey) (*types.Conversation, error)
	Get(ctx context.Context, id types.ConversationID) (*types.Conversation, error)
	Touch(ctx context.Context, id types.ConversationID, title string) error
}

// Request is one inbound chat message. ConversationID takes precedence over
// Key; with neither a fresh conversation is created. A non-nil History
// replaces the stored transcript as model context.
type Request struct {
	ConversationID types.ConversationID
	Key            types.ConversationKey
	History        []*types.Message
	Message        string
	Mode           types.Mode
	Trip           *types.TripContext
}

// Turn is an admitted, running turn. Events mirrors the runtime's stream;
// Done is closed once the exchange has been persisted.
type Turn struct {
	Conversation *types.Conversation
	Events       <-chan types.Event

	done   chan struct{}
	mu     sync.Mutex
	result *types.Message
}

// Wait blocks until the turn is persisted and returns the final assistant
// message.
func (t *Turn) Wait(ctx context.Context) (*types.Message, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, nil
}

// Gateway connects transports to the runtime.
type Gateway struct {
	turns         Turns
	messages      Messages
	conversations Conversations
	admission     *Admission
	historyLimit  int
}

// New creates a Gateway running at most maxConcurrent turns at once.
func New(turns Turns, messages Messages, conversations Conversations, maxConcurrent int64) *Gateway {
	return &Gateway{
		turns:         turns,
		messages:      messages,
		conversations: conversations,
		admission:     NewAdmission(maxConcurrent),
		historyLimit:  defaultHistoryLimit,
	}
}

// SetHistoryTurns sizes the stored transcript tail loaded per turn to cover
// n user/assistant exchanges.
func (g *Gateway) SetHistoryTurns(n int) {
	if n > 0 {
		g.historyLimit = 2 * n
	}
}

// Admission exposes the admission controller, used for graceful shutdown.
func (g *Gateway) Admission() *Admission {
	return g.admission
}

func (g *Gateway) resolve(ctx context.Context, req Request) (*types.Conversation, error) {
	switch {
	case req.ConversationID != "":
		return g.conversations.Get(ctx, req.ConversationID)
	case req.Key != "":
		return g.conversations.ResolveOrCreate(ctx, req.Key)
	default:
		return g.conversations.Create(ctx)
	}
}

// HandleTurn resolves the conversation, waits for admission and starts the
// turn. Errors from the decision call are returned directly and nothing is
// persisted.
func (g *Gateway) HandleTurn(ctx context.Context, req Request) (*Turn, error) {
	conv, err := g.resolve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	release, err := g.admission.Acquire(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("admit turn: %w", err)
	}
	metrics.ActiveTurns.Inc()
	finish := func() {
		metrics.ActiveTurns.Dec()
		release()
	}

	history := req.History
	if history == nil {
		history, err = g.messages.Tail(ctx, conv.ID, g.historyLimit)
		if err != nil {
			finish()
			return nil, fmt.Errorf("load history: %w", err)
		}
	}
	trip := req.Trip
	if trip == nil {
		trip = conv.Trip
	}

	events, err := g.turns.StartTurn(ctx, runtime.TurnRequest{
		History: history,
		Message: req.Message,
		Mode:    req.Mode,
		Trip:    trip,
	})
	if err != nil {
		finish()
		return nil, err
	}

	out := make(chan types.Event)
	turn := &Turn{Conversation: conv, Events: out, done: make(chan struct{})}
	user := types.NewUserMessage(conv.ID, req.Message)
	user.Mode = req.Mode
	assistant := types.NewAssistantMessage(conv.ID)

	go func() {
		defer close(turn.done)
		defer finish()

		forward, terminated := true, false
		emit := func(e types.Event) {
			assistant.Apply(e)
			terminated = terminated || e.Terminal()
			if !forward {
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				// Keep draining so the runtime can finish and the
				// exchange is still recorded.
				forward = false
			}
		}
		for e := range events {
			emit(e)
		}
		if !terminated {
			slog.Warn("turn stream closed without a final event", "conversation", conv.ID)
			emit(types.ErrorEvent(errUnterminated, req.Mode))
		}
		close(out)

		g.persist(context.WithoutCancel(ctx), conv, user, assistant)
		turn.mu.Lock()
		turn.result = assistant
		turn.mu.Unlock()
	}()

	return turn, nil
}

func (g *Gateway) persist(ctx context.Context, conv *types.Conversation, user, assistant *types.Message) {
	if assistant.Mode == "" {
		assistant.Mode = user.Mode
	}
	if err := g.messages.Append(ctx, user, assistant); err != nil {
		slog.Error("failed to persist turn", "conversation", conv.ID, "error", err)
		return
	}
	if err := g.conversations.Touch(ctx, conv.ID, titleFrom(user.Content)); err != nil {
		slog.Warn("failed to touch conversation", "conversation", conv.ID, "error", err)
	}
}

// titleFrom derives a conversation title from the first line of a message.
func titleFrom(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	runes := []rune(strings.TrimSpace(line))
	if len(runes) <= maxTitleRunes {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + "..."
}
