package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/intervox/internal/clock"
)

// Timer counts an interview down once per second.
//
// OnTick receives the new remaining time after each tick; OnExpire fires
// exactly once when the countdown reaches zero. Both run on the clock's
// goroutine (inline during Fake.Advance) and must not block.
type Timer struct {
	clock    clock.Clock
	onTick   func(remaining time.Duration)
	onExpire func()

	mu        sync.Mutex
	remaining time.Duration
	running   bool
	expired   bool
	pending   clock.Timer
	gen       uint64
}

// NewTimer returns a stopped timer set to d.
func NewTimer(c clock.Clock, d time.Duration, onTick func(time.Duration), onExpire func()) *Timer {
	if onTick == nil {
		onTick = func(time.Duration) {}
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Timer{clock: c, remaining: d, onTick: onTick, onExpire: onExpire}
}

// Start begins ticking. It is a no-op when running or expired.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.expired {
		return
	}
	t.running = true
	t.schedule()
}

// Stop halts the countdown without firing OnExpire. Safe to call repeatedly.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.gen++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// Remaining returns the time left.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Expired reports whether OnExpire has fired.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// schedule arms the next tick. t.mu must be held.
func (t *Timer) schedule() {
	step := min(time.Second, t.remaining)
	gen := t.gen
	t.pending = t.clock.AfterFunc(step, func() { t.tick(gen, step) })
}

func (t *Timer) tick(gen uint64, step time.Duration) {
	t.mu.Lock()
	if !t.running || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.remaining = max(t.remaining-step, 0)
	remaining := t.remaining
	fire := remaining == 0
	if fire {
		t.running = false
		t.expired = true
		t.pending = nil
	} else {
		t.schedule()
	}
	t.mu.Unlock()

	t.onTick(remaining)
	if fire {
		t.onExpire()
	}
}

// FormatCountdown renders d as MM:SS, rounding partial seconds up so that
// the display reaches 00:00 only at expiry. Minutes may exceed 59.
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return "00:00"
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
