// Package clock abstracts wall-clock time so that endpointing, settle delays
// and the session countdown can be driven deterministically in tests.
//
// Production code uses [Real]. Tests use [Fake] and advance time explicitly
// with [Fake.Advance]; timers and tickers fire synchronously inside Advance,
// in deadline order.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package used by the engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine (Real) or inline during Advance
	// (Fake) once d has elapsed. The returned Timer can cancel the call.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker returns a ticker delivering the current time on C every d.
	NewTicker(d time.Duration) Ticker
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// ── Fake ─────────────────────────────────────────────────────────────────────

// Fake is a manually advanced Clock. It is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	id       int
	deadline time.Time
	period   time.Duration // 0 for one-shot timers
	fn       func()
	ch       chan time.Time
	stopped  bool
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc registers f to run when the fake time passes now+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.add(d, 0)
	w.fn = fn
	return &fakeTimer{clock: f, w: w}
}

// NewTicker returns a ticker whose channel receives a value each time the
// fake time passes a multiple of d. The channel has a buffer of one; ticks
// are dropped when the reader is behind, like time.Ticker.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.add(d, d)
	w.ch = make(chan time.Time, 1)
	return &fakeTicker{clock: f, w: w}
}

// Advance moves the fake time forward by d, firing every timer and ticker
// whose deadline falls within the window, in deadline order. Timer callbacks
// run on the caller's goroutine.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		w := f.earliest(target)
		if w == nil {
			break
		}
		f.now = w.deadline
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
			select {
			case w.ch <- f.now:
			default:
			}
			continue
		}
		w.stopped = true
		f.remove(w)
		fn := w.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

// Pending returns the number of active timers and tickers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func (f *Fake) add(d, period time.Duration) *fakeWaiter {
	f.nextID++
	w := &fakeWaiter{id: f.nextID, deadline: f.now.Add(d), period: period}
	f.waiters = append(f.waiters, w)
	return w
}

func (f *Fake) earliest(limit time.Time) *fakeWaiter {
	var best *fakeWaiter
	for _, w := range f.waiters {
		if w.deadline.After(limit) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) ||
			(w.deadline.Equal(best.deadline) && w.id < best.id) {
			best = w
		}
	}
	return best
}

func (f *Fake) remove(w *fakeWaiter) {
	for i, cur := range f.waiters {
		if cur == w {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

type fakeTimer struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.w.stopped {
		return false
	}
	t.w.stopped = true
	t.clock.remove(t.w)
	return true
}

type fakeTicker struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.w.stopped {
		return
	}
	t.w.stopped = true
	t.clock.remove(t.w)
}
