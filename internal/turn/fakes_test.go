package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/capture"
	"github.com/MrWong99/intervox/internal/clock"
	"github.com/MrWong99/intervox/internal/dialogue"
	"github.com/MrWong99/intervox/internal/endpoint"
	"github.com/MrWong99/intervox/internal/playback"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/pkg/audio"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// devices is the shared view of the microphone and speaker. It records every
// moment both would have been live at once.
type devices struct {
	mu         sync.Mutex
	micLive    bool
	spkLive    bool
	violations int
}

func (d *devices) check() {
	if d.micLive && d.spkLive {
		d.violations++
	}
}

func (d *devices) Violations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violations
}

type fakeCapture struct {
	dev *devices

	mu       sync.Mutex
	openErr  error
	startErr error
	open     bool
	opens    int
	closes   int
	turns    []uint64
	stops    int
}

func (f *fakeCapture) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeCapture) StartTurn(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.turns = append(f.turns, id)
	f.dev.mu.Lock()
	f.dev.micLive = true
	f.dev.check()
	f.dev.mu.Unlock()
	return nil
}

func (f *fakeCapture) StopTurn() audio.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.dev.mu.Lock()
	f.dev.micLive = false
	f.dev.mu.Unlock()
	return audio.Segment{}
}

func (f *fakeCapture) Active() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.dev.micLive
}

func (f *fakeCapture) Close() error {
	f.StopTurn()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open = false
	return nil
}

// LastTurn returns the id of the most recently armed turn.
func (f *fakeCapture) LastTurn() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.turns) == 0 {
		return 0
	}
	return f.turns[len(f.turns)-1]
}

func (f *fakeCapture) Armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns)
}

type fakePlayer struct {
	dev *devices

	mu      sync.Mutex
	items   []playback.Item
	onEvent func(playback.Event)
	stops   int
}

func (f *fakePlayer) Play(_ context.Context, item playback.Item, onEvent func(playback.Event)) {
	f.Stop()
	f.mu.Lock()
	f.items = append(f.items, item)
	f.onEvent = onEvent
	f.dev.mu.Lock()
	f.dev.spkLive = true
	f.dev.check()
	f.dev.mu.Unlock()
	f.mu.Unlock()
	onEvent(playback.Event{Kind: playback.Started})
}

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.onEvent = nil
	f.dev.mu.Lock()
	f.dev.spkLive = false
	f.dev.mu.Unlock()
}

func (f *fakePlayer) Active() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.dev.spkLive
}

// Finish ends the current item with kind. It reports false when nothing is
// playing.
func (f *fakePlayer) Finish(kind playback.EventKind, err error) bool {
	f.mu.Lock()
	cb := f.onEvent
	f.onEvent = nil
	f.dev.mu.Lock()
	f.dev.spkLive = false
	f.dev.mu.Unlock()
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(playback.Event{Kind: kind, Err: err})
	return true
}

func (f *fakePlayer) Items() []playback.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playback.Item(nil), f.items...)
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
	gate  chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string, _ audio.Segment) (string, error) {
	f.mu.Lock()
	f.calls++
	text, err, gate := f.text, f.err, f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDialogue struct {
	mu       sync.Mutex
	requests []dialogue.Request
	err      error
	gate     chan struct{}
	returned chan struct{}
}

func (f *fakeDialogue) Next(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	err, gate, returned := f.err, f.gate, f.returned
	f.mu.Unlock()
	if returned != nil {
		defer close(returned)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return dialogue.Reply{}, err
	}
	if req.Message == "" {
		return dialogue.Reply{Text: "Tell me about yourself."}, nil
	}
	return dialogue.Reply{Text: "Follow-up " + string(rune('0'+n))}, nil
}

func (f *fakeDialogue) Requests() []dialogue.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dialogue.Request(nil), f.requests...)
}

// harness runs a Controller against fakes.
type harness struct {
	t      *testing.T
	clk    *clock.Fake
	dev    *devices
	cap    *fakeCapture
	player *fakePlayer
	stt    *fakeTranscriber
	dlg    *fakeDialogue
	ctrl   *Controller
	events <-chan Event
}

func newHarness(t *testing.T, duration time.Duration) *harness {
	t.Helper()
	sess, err := session.New("session-test", session.Technical, duration)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	dev := &devices{}
	h := &harness{
		t:      t,
		clk:    clock.NewFake(epoch),
		dev:    dev,
		cap:    &fakeCapture{dev: dev},
		player: &fakePlayer{dev: dev},
		stt:    &fakeTranscriber{text: "I built a compiler."},
		dlg:    &fakeDialogue{},
	}
	h.ctrl, err = New(Config{
		Session:     sess,
		Capture:     h.cap,
		Transcriber: h.stt,
		Dialogue:    h.dlg,
		Player:      h.player,
		Clock:       h.clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var unsubscribe func()
	h.events, unsubscribe = h.ctrl.Subscribe(1024)

	ctx, cancel := context.WithCancel(context.Background())
	go h.ctrl.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.ctrl.Done()
		unsubscribe()
	})
	return h
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	s, err := h.ctrl.Snapshot()
	if err != nil {
		h.t.Fatalf("Snapshot: %v", err)
	}
	return s
}

// waitMode polls until the controller reaches want.
func (h *harness) waitMode(want Mode) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.snapshot()
		if s.Mode == want {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("mode = %v, want %v", s.Mode, want)
		}
		time.Sleep(time.Millisecond)
	}
}

// observe reads the mode and both devices in one turn of the event loop, so
// the three values belong to the same controller state.
func (h *harness) observe() (mode Mode, micLive, spkLive bool) {
	h.t.Helper()
	err := h.ctrl.do(func() error {
		mode = h.ctrl.mode
		micLive, spkLive = h.cap.Active(), h.player.Active()
		return nil
	})
	if err != nil {
		h.t.Fatalf("observe: %v", err)
	}
	return mode, micLive, spkLive
}

// waitRequests polls until the dialogue fake has seen n requests.
func (h *harness) waitRequests(n int) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(h.dlg.Requests()) < n {
		if time.Now().After(deadline) {
			h.t.Fatalf("dialogue requests = %d, want %d", len(h.dlg.Requests()), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// settle drains posted callbacks by round-tripping the loop after a short
// pause.
func (h *harness) settle() {
	h.t.Helper()
	time.Sleep(10 * time.Millisecond)
	h.snapshot()
}

// startSpeaking starts the session and waits for the opening reply.
func (h *harness) startSpeaking() {
	h.t.Helper()
	if err := h.ctrl.Start(); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.waitMode(Speaking)
}

// finishPlayback ends the current reply and lets the settle delay pass.
func (h *harness) finishPlayback() {
	h.t.Helper()
	if !h.player.Finish(playback.Finished, nil) {
		h.t.Fatal("nothing was playing")
	}
	h.settle()
	h.clk.Advance(MinSettleDelay)
	h.waitMode(Listening)
}

// speak delivers a completed turn for the armed capture.
func (h *harness) speak(decision endpoint.Decision) {
	h.ctrl.HandleCapture(capture.Result{TurnID: h.cap.LastTurn(), Decision: decision})
}

// modes returns the mode sequence observed so far, starting from Idle.
func (h *harness) modes() []Mode {
	seq := []Mode{Idle}
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == EventMode {
				seq = append(seq, ev.Mode)
			}
		default:
			return seq
		}
	}
}
