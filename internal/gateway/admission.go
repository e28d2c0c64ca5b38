package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/wayfarer/internal/types"
)

// Admission limits concurrent turns. Each conversation gets its own lane so
// its turns run one at a time in arrival order, while the semaphore caps the
// number of turns running across all conversations.
type Admission struct {
	semaphore *semaphore.Weighted
	active    atomic.Int64

	mu    sync.Mutex
	lanes map[types.ConversationID]*lane
}

// lane serializes one conversation. users counts the turns holding or
// waiting for slot; the lane is dropped when it reaches zero.
type lane struct {
	slot  chan struct{}
	users int
}

// NewAdmission allows up to maxConcurrent turns at once.
func NewAdmission(maxConcurrent int64) *Admission {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Admission{
		semaphore: semaphore.NewWeighted(maxConcurrent),
		lanes:     make(map[types.ConversationID]*lane),
	}
}

func (a *Admission) join(id types.ConversationID) *lane {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.lanes[id]
	if !ok {
		l = &lane{slot: make(chan struct{}, 1)}
		a.lanes[id] = l
	}
	l.users++
	return l
}

func (a *Admission) leave(id types.ConversationID, l *lane) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l.users--
	if l.users == 0 {
		delete(a.lanes, id)
	}
}

// Acquire blocks until the conversation's lane and a global slot are free,
// or ctx is done. The returned release func must be called exactly once.
func (a *Admission) Acquire(ctx context.Context, id types.ConversationID) (release func(), err error) {
	l := a.join(id)
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		a.leave(id, l)
		return nil, ctx.Err()
	}
	if err := a.semaphore.Acquire(ctx, 1); err != nil {
		<-l.slot
		a.leave(id, l)
		return nil, err
	}
	a.active.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.active.Add(-1)
			a.semaphore.Release(1)
			<-l.slot
			a.leave(id, l)
		})
	}, nil
}

// Active returns the number of turns currently admitted.
func (a *Admission) Active() int64 {
	return a.active.Load()
}

// WaitIdle blocks until no turns are running, or the timeout expires.
// Returns true if idle, false if timed out.
func (a *Admission) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if a.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}
