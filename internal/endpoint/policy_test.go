package endpoint

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// feed runs a synthetic stream through p: sound for the first speech
// interval of each pair, then silence for the second, sampling every 100 ms.
// It returns the decisions with the offset they were emitted at.
func feed(p *Policy, spans ...time.Duration) []decisionAt {
	var out []decisionAt
	at := time.Duration(0)
	for i, span := range spans {
		sound := i%2 == 0
		for end := at + span; at < end; {
			at += 100 * time.Millisecond
			if d := p.Observe(Sample{At: t0.Add(at), Sound: sound}); d != NoDecision {
				out = append(out, decisionAt{d, at})
			}
		}
	}
	return out
}

type decisionAt struct {
	d  Decision
	at time.Duration
}

func TestPolicy_CompletesOnceAfterSilenceWindow(t *testing.T) {
	t.Parallel()

	p := NewPolicy(DefaultParams())
	p.Begin(t0)

	// 3 s of speech, then 5 s of silence.
	got := feed(p, 3*time.Second, 5*time.Second)
	if len(got) != 1 {
		t.Fatalf("decisions = %v, want exactly one", got)
	}
	if got[0].d != TurnComplete {
		t.Errorf("decision = %v, want complete", got[0].d)
	}
	// Last sound at 3.0 s; more than 2000 ms of silence first holds at 5.1 s.
	if want := 5100 * time.Millisecond; got[0].at != want {
		t.Errorf("decided at %v, want %v", got[0].at, want)
	}
}

func TestPolicy_NeverCompletesBeforeSilenceWindow(t *testing.T) {
	t.Parallel()

	for _, pause := range []time.Duration{500 * time.Millisecond, 1900 * time.Millisecond, 2000 * time.Millisecond} {
		p := NewPolicy(DefaultParams())
		p.Begin(t0)
		if got := feed(p, time.Second, pause, time.Second, pause); len(got) != 0 {
			t.Errorf("pause %v: decisions = %v, want none", pause, got)
		}
	}
}

func TestPolicy_SilenceOnlyIsAbandoned(t *testing.T) {
	t.Parallel()

	p := NewPolicy(DefaultParams())
	p.Begin(t0)

	got := feed(p, 0, 40*time.Second)
	if len(got) != 1 || got[0].d != TurnAbandoned {
		t.Fatalf("decisions = %v, want one abandoned", got)
	}
	if got[0].at <= 30*time.Second {
		t.Errorf("abandoned at %v, want after the 30s cap", got[0].at)
	}
	if p.HasSpoken() {
		t.Error("HasSpoken() = true for silence-only turn")
	}
}

func TestPolicy_HardCapCompletesContinuousSpeech(t *testing.T) {
	t.Parallel()

	p := NewPolicy(DefaultParams())
	p.Begin(t0)

	got := feed(p, 45*time.Second)
	if len(got) != 1 || got[0].d != TurnComplete {
		t.Fatalf("decisions = %v, want one complete", got)
	}
	if want := 30100 * time.Millisecond; got[0].at != want {
		t.Errorf("decided at %v, want %v", got[0].at, want)
	}
}

func TestPolicy_BeginRearms(t *testing.T) {
	t.Parallel()

	p := NewPolicy(DefaultParams())
	p.Begin(t0)
	if got := feed(p, time.Second, 3*time.Second); len(got) != 1 {
		t.Fatalf("first turn decisions = %v", got)
	}
	if d := p.Expire(); d != NoDecision {
		t.Errorf("Expire after decision = %v, want none", d)
	}

	p.Begin(t0)
	if p.HasSpoken() {
		t.Error("HasSpoken survived Begin")
	}
	if d := p.Expire(); d != TurnAbandoned {
		t.Errorf("Expire on fresh turn = %v, want abandoned", d)
	}
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	tests := []struct {
		name string
		mod  func(*Params)
	}{
		{"zero threshold", func(p *Params) { p.SoundThreshold = 0 }},
		{"zero interval", func(p *Params) { p.SampleInterval = 0 }},
		{"window below interval", func(p *Params) { p.SilenceWindow = 50 * time.Millisecond }},
		{"cap below window", func(p *Params) { p.MaxTurnDuration = time.Second }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mod(&p)
			if err := p.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
