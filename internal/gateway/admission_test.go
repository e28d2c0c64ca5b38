package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/wayfarer/internal/types"
)

func (a *Admission) openLanes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lanes)
}

func TestAdmissionConcurrency(t *testing.T) {
	adm := NewAdmission(2)
	ctx := context.Background()

	var running, maxSeen int32
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := adm.Acquire(ctx, types.ConversationID(fmt.Sprintf("conv-%d", i)))
			if err != nil {
				t.Error(err)
				return
			}
			defer release()

			current := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		}()
	}
	wg.Wait()

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
	if adm.Active() != 0 {
		t.Errorf("expected no active turns, got %d", adm.Active())
	}
}

func TestAdmissionSameConversationSerialized(t *testing.T) {
	adm := NewAdmission(4)
	ctx := context.Background()

	release, err := adm.Acquire(ctx, "conv")
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := adm.Acquire(ctx, "conv")
		if err != nil {
			t.Error(err)
			return
		}
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn of the same conversation must wait")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release() // idempotent
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never admitted")
	}
}

func TestAdmissionCancelledWhileWaiting(t *testing.T) {
	adm := NewAdmission(1)
	release, err := adm.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := adm.Acquire(ctx, "b"); err == nil {
		t.Fatal("expected error when no slot frees up")
	}

	// The lane of "b" must have been released on failure.
	release()
	r, err := adm.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}
	r()
}

func TestAdmissionDropsIdleLanes(t *testing.T) {
	adm := NewAdmission(1)
	release, err := adm.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if n := adm.openLanes(); n != 1 {
		t.Fatalf("expected 1 open lane, got %d", n)
	}

	// "b" fails on the global slot and "a" on its own lane; neither may
	// leave a lane behind.
	for _, id := range []types.ConversationID{"b", "a"} {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		if _, err := adm.Acquire(ctx, id); err == nil {
			t.Fatalf("expected %s to time out", id)
		}
		cancel()
		if n := adm.openLanes(); n != 1 {
			t.Errorf("after %s timed out: expected 1 open lane, got %d", id, n)
		}
	}

	release()
	if n := adm.openLanes(); n != 0 {
		t.Errorf("expected no lanes after release, got %d", n)
	}

	for i := range 50 {
		r, err := adm.Acquire(context.Background(), types.ConversationID(fmt.Sprintf("conv-%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		r()
	}
	if n := adm.openLanes(); n != 0 {
		t.Errorf("finished conversations should not keep lanes, got %d", n)
	}
}

func TestAdmissionWaitIdle(t *testing.T) {
	adm := NewAdmission(1)
	release, err := adm.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if adm.WaitIdle(50 * time.Millisecond) {
		t.Error("expected timeout while a turn is active")
	}
	release()
	if !adm.WaitIdle(time.Second) {
		t.Error("expected idle after release")
	}
}
