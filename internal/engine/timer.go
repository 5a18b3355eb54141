package engine

import (
	"context"
	"sync"
	"time"
)

// Timer is the single countdown resource owned by a session. It runs for at
// most one section at a time: arming it for a new section stops the previous
// run. Callbacks carry the section ID they were armed for, so a stale tick
// from a superseded run can be recognized and dropped by the owner.
type Timer struct {
	mu        sync.Mutex
	interval  time.Duration
	cancel    context.CancelFunc
	remaining int
	sectionID string

	onTick   func(sectionID string, remaining int)
	onExpire func(sectionID string)
}

// NewTimer creates a timer ticking once per second.
func NewTimer(onTick func(string, int), onExpire func(string)) *Timer {
	return newTimerWithInterval(time.Second, onTick, onExpire)
}

// newTimerWithInterval is a test hook for deterministic fast ticking.
func newTimerWithInterval(interval time.Duration, onTick func(string, int), onExpire func(string)) *Timer {
	return &Timer{
		interval: interval,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start arms the timer for a section with a fresh budget, stopping any
// previous run first. A budget that is already exhausted (stale resume)
// fires the terminal event immediately rather than after a further tick.
// The terminal dispatch is asynchronous so callers may hold their own
// locks while arming.
func (t *Timer) Start(sectionID string, budgetSec int) {
	t.mu.Lock()
	t.stopLocked()

	t.sectionID = sectionID
	if budgetSec <= 0 {
		t.remaining = 0
		t.mu.Unlock()
		go t.onExpire(sectionID)
		return
	}

	t.remaining = budgetSec
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx, sectionID)
}

// Stop suspends the countdown. Idempotent; the remaining budget is kept so
// a later Start can resume with a fresh value from the orchestrator.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Remaining returns the seconds left on the current arm. Non-increasing
// while running and never negative.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) run(ctx context.Context, sectionID string) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			if ctx.Err() != nil || t.sectionID != sectionID {
				t.mu.Unlock()
				return
			}
			if t.remaining > 0 {
				t.remaining--
			}
			remaining := t.remaining
			if remaining == 0 {
				t.stopLocked()
			}
			t.mu.Unlock()

			if remaining > 0 {
				t.onTick(sectionID, remaining)
			} else {
				// Single terminal event per arm; the loop exits after it.
				t.onExpire(sectionID)
				return
			}
		}
	}
}
