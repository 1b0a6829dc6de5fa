// Package endpoint decides from microphone energy when a user has finished
// speaking.
//
// A [Monitor] turns the raw PCM of the current turn into one [Sample] per
// sampling interval. A [Policy] consumes those samples and emits at most one
// [Decision] per turn:
//
//   - [TurnComplete] once the user has spoken and then stayed silent for
//     longer than the silence window, or when the hard turn cap is exceeded
//     after some speech.
//   - [TurnAbandoned] when the hard cap is exceeded without any speech.
//
// Silence alone never completes a turn, so a segment that is pure room noise
// is never sent to transcription.
package endpoint

import (
	"errors"
	"fmt"
	"time"
)

// Decision is the outcome of a turn.
type Decision int

const (
	// NoDecision means the turn is still open.
	NoDecision Decision = iota

	// TurnComplete means the user spoke and the segment should be transcribed.
	TurnComplete

	// TurnAbandoned means the hard cap was reached without speech.
	TurnAbandoned
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case NoDecision:
		return "none"
	case TurnComplete:
		return "complete"
	case TurnAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Sample is one energy measurement.
type Sample struct {
	At    time.Time
	Level float64 // normalised RMS in [0, 1]
	Sound bool    // Level above the sound threshold
}

// Params configures endpointing.
type Params struct {
	// SoundThreshold is the normalised RMS level above which a sample counts
	// as sound.
	SoundThreshold float64

	// SilenceWindow is the continuous silence after speech that ends a turn.
	SilenceWindow time.Duration

	// MaxTurnDuration is the hard cap on a single turn.
	MaxTurnDuration time.Duration

	// SampleInterval is how often the monitor is sampled.
	SampleInterval time.Duration
}

// DefaultParams returns the stock endpointing parameters.
func DefaultParams() Params {
	return Params{
		SoundThreshold:  0.01,
		SilenceWindow:   2000 * time.Millisecond,
		MaxTurnDuration: 30 * time.Second,
		SampleInterval:  100 * time.Millisecond,
	}
}

// Validate reports every invalid parameter.
func (p Params) Validate() error {
	var errs []error
	if p.SoundThreshold <= 0 || p.SoundThreshold >= 1 {
		errs = append(errs, fmt.Errorf("endpoint: sound threshold %v must be in (0, 1)", p.SoundThreshold))
	}
	if p.SampleInterval <= 0 {
		errs = append(errs, errors.New("endpoint: sample interval must be positive"))
	}
	if p.SilenceWindow < p.SampleInterval {
		errs = append(errs, errors.New("endpoint: silence window must be at least one sample interval"))
	}
	if p.MaxTurnDuration <= p.SilenceWindow {
		errs = append(errs, errors.New("endpoint: max turn duration must exceed the silence window"))
	}
	return errors.Join(errs...)
}

// Policy is the endpointing state of one turn. It is a pure function of the
// samples it observes and is not safe for concurrent use.
type Policy struct {
	params      Params
	turnStart   time.Time
	lastSoundAt time.Time
	hasSpoken   bool
	decided     bool
}

// NewPolicy returns a Policy. Call Begin before the first Observe.
func NewPolicy(p Params) *Policy {
	return &Policy{params: p}
}

// Begin resets the policy for a turn starting at now.
func (p *Policy) Begin(now time.Time) {
	p.turnStart = now
	p.lastSoundAt = time.Time{}
	p.hasSpoken = false
	p.decided = false
}

// HasSpoken reports whether any sample of the current turn was sound.
func (p *Policy) HasSpoken() bool { return p.hasSpoken }

// Observe feeds one sample and returns the decision it triggers. Once a
// decision has been returned, every further call returns NoDecision until the
// next Begin.
func (p *Policy) Observe(s Sample) Decision {
	if p.decided {
		return NoDecision
	}
	if s.Sound {
		p.hasSpoken = true
		p.lastSoundAt = s.At
	} else if p.hasSpoken && s.At.Sub(p.lastSoundAt) > p.params.SilenceWindow {
		return p.decide(TurnComplete)
	}
	if s.At.Sub(p.turnStart) > p.params.MaxTurnDuration {
		return p.Expire()
	}
	return NoDecision
}

// Expire forces the hard-cap decision for the current turn: TurnComplete if
// the user spoke, TurnAbandoned otherwise. It returns NoDecision if the turn
// was already decided.
func (p *Policy) Expire() Decision {
	if p.decided {
		return NoDecision
	}
	if p.hasSpoken {
		return p.decide(TurnComplete)
	}
	return p.decide(TurnAbandoned)
}

func (p *Policy) decide(d Decision) Decision {
	p.decided = true
	return d
}
