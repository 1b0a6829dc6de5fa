package turn

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/capture"
	"github.com/MrWong99/intervox/internal/clock"
	"github.com/MrWong99/intervox/internal/endpoint"
	"github.com/MrWong99/intervox/internal/playback"
	"github.com/MrWong99/intervox/internal/remote"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/pkg/audio"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	sess, _ := session.New("s", session.Technical, time.Minute)
	dev := &devices{}
	full := Config{
		Session:     sess,
		Capture:     &fakeCapture{dev: dev},
		Transcriber: &fakeTranscriber{},
		Dialogue:    &fakeDialogue{},
		Player:      &fakePlayer{dev: dev},
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no session", func(c *Config) { c.Session = nil }},
		{"no capture", func(c *Config) { c.Capture = nil }},
		{"no player", func(c *Config) { c.Player = nil }},
		{"no transcriber", func(c *Config) { c.Transcriber = nil }},
		{"no dialogue", func(c *Config) { c.Dialogue = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}

	c, err := New(full)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.settle != MinSettleDelay {
		t.Errorf("settle = %v, want %v", c.settle, MinSettleDelay)
	}
}

// Start with the microphone granted plays the opening line, then listens.
func TestScenarioA_Start(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)

	h.startSpeaking()
	h.finishPlayback()

	want := []Mode{Idle, Processing, Speaking, Listening}
	if got := h.modes(); !slices.Equal(got, want) {
		t.Errorf("modes = %v, want %v", got, want)
	}
	reqs := h.dlg.Requests()
	if len(reqs) != 1 || reqs[0].Message != "" {
		t.Errorf("dialogue requests = %+v, want one opening request", reqs)
	}
	if reqs[0].InterviewType != session.Technical || reqs[0].Duration != 10*time.Minute {
		t.Errorf("opening request = %+v", reqs[0])
	}
	s := h.snapshot()
	if s.Phase != session.Active {
		t.Errorf("Phase = %v, want active", s.Phase)
	}
	if len(s.Turns) != 1 || s.Turns[0].Role != session.RoleSystem {
		t.Errorf("Turns = %+v, want the opening line", s.Turns)
	}
	if !h.cap.Active() || h.player.Active() {
		t.Errorf("mic live = %v speaker live = %v, want true false", h.cap.Active(), h.player.Active())
	}
}

// One completed spoken turn is transcribed once and answered once.
func TestScenarioB_SpokenTurn(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()
	h.finishPlayback()
	h.modes()

	h.speak(endpoint.TurnComplete)
	h.waitMode(Speaking)
	h.finishPlayback()

	if got := h.stt.Calls(); got != 1 {
		t.Errorf("transcriptions = %d, want 1", got)
	}
	reqs := h.dlg.Requests()
	if len(reqs) != 2 || reqs[1].Message != "I built a compiler." {
		t.Errorf("dialogue requests = %+v", reqs)
	}
	want := []Mode{Idle, Processing, Speaking, Listening}
	if got := h.modes(); !slices.Equal(got, want) {
		t.Errorf("modes = %v, want %v", got, want)
	}
	s := h.snapshot()
	if len(s.Turns) != 3 {
		t.Fatalf("len(Turns) = %d, want 3", len(s.Turns))
	}
	if s.Turns[1].Role != session.RoleUser || s.Turns[1].Text != "I built a compiler." {
		t.Errorf("Turns[1] = %+v", s.Turns[1])
	}
	if items := h.player.Items(); len(items) != 2 || items[1].Text != "Follow-up 2" {
		t.Errorf("played = %+v", items)
	}
}

func TestScenarioC_MuteWhileListening(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()
	h.finishPlayback()
	armed := h.cap.Armed()

	if err := h.ctrl.Mute(); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	s := h.snapshot()
	if s.Mode != Muted || !s.Muted {
		t.Errorf("after Mute mode = %v muted = %v", s.Mode, s.Muted)
	}
	if h.cap.Active() {
		t.Error("capture still live while muted")
	}
	// A late capture result from the stopped turn is ignored.
	h.speak(endpoint.TurnComplete)
	h.settle()
	if got := h.stt.Calls(); got != 0 {
		t.Errorf("transcriptions while muted = %d, want 0", got)
	}

	if err := h.ctrl.Unmute(); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if s := h.snapshot(); s.Mode != Listening || s.Muted {
		t.Errorf("after Unmute mode = %v muted = %v", s.Mode, s.Muted)
	}
	if !h.cap.Active() || h.cap.Armed() != armed+1 {
		t.Errorf("capture live = %v armed = %d, want true %d", h.cap.Active(), h.cap.Armed(), armed+1)
	}
}

// Expiry while speaking stops playback and drops everything afterwards.
func TestScenarioD_ExpiryWhileSpeaking(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 2*time.Minute)
	h.startSpeaking()

	h.clk.Advance(2 * time.Minute)
	h.waitMode(Completed)

	if h.player.Active() || h.cap.Active() {
		t.Errorf("speaker live = %v mic live = %v after expiry", h.player.Active(), h.cap.Active())
	}
	s := h.snapshot()
	if s.Phase != session.Completed || s.Countdown != "00:00" {
		t.Errorf("Phase = %v Countdown = %q", s.Phase, s.Countdown)
	}

	if h.player.Finish(playback.Finished, nil) {
		t.Error("playback callback still registered after expiry")
	}
	h.speak(endpoint.TurnComplete)
	if err := h.ctrl.SubmitText("late"); !errors.Is(err, ErrNotActive) {
		t.Errorf("SubmitText after expiry = %v, want ErrNotActive", err)
	}
	h.clk.Advance(time.Second)
	h.settle()
	if got := len(h.dlg.Requests()); got != 1 {
		t.Errorf("dialogue requests = %d, want 1", got)
	}
	if got := h.stt.Calls(); got != 0 {
		t.Errorf("transcriptions = %d, want 0", got)
	}
	sum, err := h.ctrl.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Reason != session.EndExpired {
		t.Errorf("Reason = %v, want %v", sum.Reason, session.EndExpired)
	}
}

func TestScenarioE_TypedAnswer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()
	h.finishPlayback()

	if err := h.ctrl.SubmitText("  hello  "); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	h.waitMode(Speaking)

	if got := h.stt.Calls(); got != 0 {
		t.Errorf("transcriptions = %d, want 0", got)
	}
	reqs := h.dlg.Requests()
	if len(reqs) != 2 || reqs[1].Message != "hello" {
		t.Errorf("dialogue requests = %+v, want second with message hello", reqs)
	}
	if h.cap.Active() {
		t.Error("capture live while speaking")
	}
}

func TestSubmitText_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)

	if err := h.ctrl.SubmitText(" \t\n"); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank text = %v, want ErrEmptyText", err)
	}
	if err := h.ctrl.SubmitText("hi"); !errors.Is(err, ErrNotActive) {
		t.Errorf("before start = %v, want ErrNotActive", err)
	}

	h.startSpeaking()
	h.finishPlayback()
	gate := make(chan struct{})
	h.dlg.mu.Lock()
	h.dlg.gate = gate
	h.dlg.mu.Unlock()

	if err := h.ctrl.SubmitText("first"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if err := h.ctrl.SubmitText("second"); !errors.Is(err, ErrBusy) {
		t.Errorf("while in flight = %v, want ErrBusy", err)
	}
	if s := h.snapshot(); !s.InFlight || s.Mode != Processing {
		t.Errorf("InFlight = %v Mode = %v", s.InFlight, s.Mode)
	}
	close(gate)
	h.waitMode(Speaking)
}

func TestSubmitText_WhileSpeakingStopsPlayback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()

	if err := h.ctrl.SubmitText("skip ahead"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	h.waitMode(Speaking)
	if items := h.player.Items(); len(items) != 2 {
		t.Errorf("played %d items, want 2", len(items))
	}
	if got := h.dev.Violations(); got != 0 {
		t.Errorf("violations = %d, want 0", got)
	}
}

func TestMute_Idempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)

	if err := h.ctrl.Mute(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Mute before start = %v, want ErrNotActive", err)
	}
	h.startSpeaking()
	h.finishPlayback()

	for i := range 2 {
		if err := h.ctrl.Mute(); err != nil {
			t.Fatalf("Mute #%d: %v", i, err)
		}
	}
	for i := range 2 {
		if err := h.ctrl.Unmute(); err != nil {
			t.Fatalf("Unmute #%d: %v", i, err)
		}
	}
	if s := h.snapshot(); s.Mode != Listening || s.Muted {
		t.Errorf("mode = %v muted = %v, want listening false", s.Mode, s.Muted)
	}

	muted, err := h.ctrl.ToggleMute()
	if err != nil || !muted {
		t.Errorf("ToggleMute = %v, %v, want true", muted, err)
	}
	muted, err = h.ctrl.ToggleMute()
	if err != nil || muted {
		t.Errorf("ToggleMute = %v, %v, want false", muted, err)
	}

	want := []Mode{Idle, Processing, Speaking, Listening, Muted, Listening, Muted, Listening}
	if got := h.modes(); !slices.Equal(got, want) {
		t.Errorf("modes = %v, want %v", got, want)
	}
}

// Muting while a reply is prepared lets it finish but keeps it silent.
func TestMute_DuringProcessing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()
	h.finishPlayback()

	gate := make(chan struct{})
	returned := make(chan struct{})
	h.dlg.mu.Lock()
	h.dlg.gate, h.dlg.returned = gate, returned
	h.dlg.mu.Unlock()

	h.speak(endpoint.TurnComplete)
	h.waitMode(Processing)
	if err := h.ctrl.Mute(); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if err := h.ctrl.Unmute(); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if s := h.snapshot(); s.Mode != Processing {
		t.Errorf("Unmute with reply pending: mode = %v, want processing", s.Mode)
	}
	if err := h.ctrl.Mute(); err != nil {
		t.Fatalf("Mute: %v", err)
	}

	close(gate)
	<-returned
	h.settle()

	s := h.snapshot()
	if s.Mode != Muted || s.InFlight {
		t.Errorf("mode = %v InFlight = %v, want muted false", s.Mode, s.InFlight)
	}
	if len(s.Turns) != 3 {
		t.Errorf("len(Turns) = %d, want reply recorded", len(s.Turns))
	}
	if got := len(h.player.Items()); got != 1 {
		t.Errorf("played %d items, want only the opening", got)
	}

	if err := h.ctrl.Unmute(); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if s := h.snapshot(); s.Mode != Listening {
		t.Errorf("mode = %v, want listening", s.Mode)
	}
}

func TestMute_WhileSpeakingStopsPlayback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()

	if err := h.ctrl.Mute(); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if h.player.Active() || h.cap.Active() {
		t.Errorf("speaker live = %v mic live = %v while muted", h.player.Active(), h.cap.Active())
	}
	if h.player.Finish(playback.Finished, nil) {
		t.Error("playback callback still registered")
	}
	if err := h.ctrl.Unmute(); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if s := h.snapshot(); s.Mode != Listening {
		t.Errorf("mode = %v, want listening", s.Mode)
	}
}

func TestStart_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want StartReason
	}{
		{"permission", fmt.Errorf("open: %w", audio.ErrPermissionDenied), ReasonPermissionDenied},
		{"device", fmt.Errorf("open: %w", audio.ErrDeviceUnavailable), ReasonDeviceUnavailable},
		{"other", errors.New("boom"), ReasonDeviceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, 10*time.Minute)
			h.cap.mu.Lock()
			h.cap.openErr = tt.err
			h.cap.mu.Unlock()

			err := h.ctrl.Start()
			var se *StartError
			if !errors.As(err, &se) {
				t.Fatalf("Start() = %v, want *StartError", err)
			}
			if se.Reason != tt.want {
				t.Errorf("Reason = %v, want %v", se.Reason, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Start() does not wrap %v", tt.err)
			}
			s := h.snapshot()
			if s.Mode != Error || s.Phase != session.NotStarted {
				t.Errorf("Mode = %v Phase = %v, want error not_started", s.Mode, s.Phase)
			}
			if got := len(h.dlg.Requests()); got != 0 {
				t.Errorf("dialogue requests = %d, want 0", got)
			}

			h.cap.mu.Lock()
			h.cap.openErr = nil
			h.cap.mu.Unlock()
			h.startSpeaking()
			if err := h.ctrl.Start(); !errors.Is(err, ErrAlreadyStarted) {
				t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
			}
		})
	}
}

func TestCapture_AbandonedTurnRearms(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()
	h.finishPlayback()
	first := h.cap.LastTurn()

	h.speak(endpoint.TurnAbandoned)
	h.settle()

	if got := h.cap.LastTurn(); got <= first {
		t.Errorf("capture turn = %d, want a new turn after %d", got, first)
	}
	if s := h.snapshot(); s.Mode != Listening {
		t.Errorf("mode = %v, want listening", s.Mode)
	}
	if got := h.stt.Calls(); got != 0 {
		t.Errorf("transcriptions = %d, want 0", got)
	}

	// A result from the superseded turn is ignored.
	h.ctrl.HandleCapture(capture.Result{TurnID: first, Decision: endpoint.TurnComplete})
	h.settle()
	if got := h.stt.Calls(); got != 0 {
		t.Errorf("stale result transcribed: calls = %d", got)
	}
}

func TestTranscription_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantError bool
	}{
		{"empty", remote.ErrEmptyResult, false},
		{"network", &remote.NetworkError{Op: "stt", Err: errors.New("refused")}, true},
		{"server", &remote.ServerError{Op: "stt", Status: 502}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, 10*time.Minute)
			h.stt.err = tt.err
			h.startSpeaking()
			h.finishPlayback()
			h.modes()

			h.speak(endpoint.TurnComplete)
			h.settle()
			h.waitMode(Listening)

			want := []Mode{Idle, Processing, Listening}
			if tt.wantError {
				want = []Mode{Idle, Processing, Error, Listening}
			}
			if got := h.modes(); !slices.Equal(got, want) {
				t.Errorf("modes = %v, want %v", got, want)
			}
			if got := len(h.dlg.Requests()); got != 1 {
				t.Errorf("dialogue requests = %d, want only the opening", got)
			}
			if !h.cap.Active() {
				t.Error("capture not re-armed")
			}
		})
	}
}

func TestDialogue_FailureDropsTurn(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()
	h.finishPlayback()
	h.dlg.mu.Lock()
	h.dlg.err = &remote.ServerError{Op: "dialogue", Status: 503}
	h.dlg.mu.Unlock()
	h.modes()

	h.speak(endpoint.TurnComplete)
	h.settle()
	h.waitMode(Listening)

	want := []Mode{Idle, Processing, Error, Listening}
	if got := h.modes(); !slices.Equal(got, want) {
		t.Errorf("modes = %v, want %v", got, want)
	}
	if s := h.snapshot(); len(s.Turns) != 1 {
		t.Errorf("len(Turns) = %d, want 1 (failed turn dropped)", len(s.Turns))
	}
}

func TestPlayback_FailureResumesListening(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)
	h.startSpeaking()

	h.player.Finish(playback.Failed, errors.New("device gone"))
	h.settle()
	if s := h.snapshot(); s.Mode != Speaking {
		t.Errorf("mode before settle delay = %v, want speaking", s.Mode)
	}
	h.clk.Advance(MinSettleDelay)
	h.waitMode(Listening)
}

func TestEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 10*time.Minute)

	if err := h.ctrl.End(); !errors.Is(err, ErrNotActive) {
		t.Errorf("End before start = %v, want ErrNotActive", err)
	}
	h.startSpeaking()
	h.finishPlayback()

	if err := h.ctrl.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := h.ctrl.End(); err != nil {
		t.Errorf("second End = %v, want nil", err)
	}
	if h.cap.Active() {
		t.Error("capture live after End")
	}
	h.cap.mu.Lock()
	closes := h.cap.closes
	h.cap.mu.Unlock()
	if closes == 0 {
		t.Error("microphone not released")
	}

	var completed int
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == EventCompleted {
				completed++
				if ev.EndReason != session.EndManual {
					t.Errorf("EndReason = %v, want %v", ev.EndReason, session.EndManual)
				}
			}
			continue
		default:
		}
		break
	}
	if completed != 1 {
		t.Errorf("completed events = %d, want 1", completed)
	}

	sum, err := h.ctrl.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Reason != session.EndManual || len(sum.Turns) != 1 {
		t.Errorf("Summary = %+v", sum)
	}
}

// A reply that arrives after expiry never reaches the speaker.
func TestTimer_SupersedesInFlightReply(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Minute)
	h.startSpeaking()
	h.finishPlayback()

	gate := make(chan struct{})
	returned := make(chan struct{})
	h.dlg.mu.Lock()
	h.dlg.gate, h.dlg.returned = gate, returned
	h.dlg.mu.Unlock()

	h.speak(endpoint.TurnComplete)
	h.waitMode(Processing)
	// The reply request is parked on the gate before the clock runs out.
	h.waitRequests(2)
	h.clk.Advance(time.Minute)
	h.waitMode(Completed)

	close(gate)
	<-returned
	h.settle()

	if s := h.snapshot(); s.Mode != Completed {
		t.Errorf("mode = %v, want completed", s.Mode)
	}
	if got := len(h.player.Items()); got != 1 {
		t.Errorf("played %d items, want only the opening", got)
	}
	if h.cap.Active() || h.player.Active() {
		t.Error("device live after completion")
	}
}

func TestTick_PublishesCountdown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 2*time.Minute)
	h.startSpeaking()

	h.clk.Advance(3 * time.Second)
	h.settle()

	var last string
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == EventTick {
				last = ev.Remaining
			}
			continue
		default:
		}
		break
	}
	if last != "01:57" {
		t.Errorf("last tick = %q, want 01:57", last)
	}
	if s := h.snapshot(); s.Countdown != "01:57" {
		t.Errorf("Countdown = %q, want 01:57", s.Countdown)
	}
}

func TestSubscribe_CancelCloses(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Minute)

	ch, cancel := h.ctrl.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel open after cancel")
	}
	// Publishing to the remaining subscriber still works.
	h.startSpeaking()
}

func TestCommands_AfterRunReturns(t *testing.T) {
	t.Parallel()

	sess, _ := session.New("stopped", session.Behavioral, time.Minute)
	dev := &devices{}
	c, err := New(Config{
		Session:     sess,
		Capture:     &fakeCapture{dev: dev},
		Transcriber: &fakeTranscriber{},
		Dialogue:    &fakeDialogue{},
		Player:      &fakePlayer{dev: dev},
		Clock:       clock.NewFake(epoch),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	cancel()
	<-c.Done()

	if err := c.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Run returned = %v, want ErrStopped", err)
	}
	if _, err := c.Snapshot(); !errors.Is(err, ErrStopped) {
		t.Errorf("Snapshot after Run returned = %v, want ErrStopped", err)
	}
}

// Random command and event sequences never leave the microphone and the
// speaker live at the same time.
func TestMutualExclusion_RandomSequences(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			t.Parallel()
			rng := rand.New(rand.NewPCG(seed, seed*7))
			h := newHarness(t, 5*time.Minute)
			if seed%3 == 0 {
				h.stt.err = remote.ErrEmptyResult
			}
			if err := h.ctrl.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}

			for step := 0; step < 60; step++ {
				switch rng.IntN(8) {
				case 0:
					_ = h.ctrl.Mute()
				case 1:
					_ = h.ctrl.Unmute()
				case 2:
					_ = h.ctrl.SubmitText("typed answer")
				case 3:
					h.speak(endpoint.TurnComplete)
				case 4:
					h.speak(endpoint.TurnAbandoned)
				case 5:
					h.player.Finish(playback.Finished, nil)
				case 6:
					h.clk.Advance(time.Duration(rng.IntN(1500)) * time.Millisecond)
				case 7:
					h.settle()
				}

				mode, micLive, spkLive := h.observe()
				switch mode {
				case Speaking:
					if micLive {
						t.Fatalf("step %d: capture live while speaking", step)
					}
				case Listening:
					if spkLive {
						t.Fatalf("step %d: playback live while listening", step)
					}
				case Muted, Processing:
					if micLive || spkLive {
						t.Fatalf("step %d: device live in %v (mic %v speaker %v)", step, mode, micLive, spkLive)
					}
				}
			}
			if got := h.dev.Violations(); got != 0 {
				t.Errorf("violations = %d, want 0", got)
			}
		})
	}
}
