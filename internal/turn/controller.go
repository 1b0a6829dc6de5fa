// Package turn is the interview's turn-taking state machine.
//
// A [Controller] owns the mode variable of one session and runs a single
// event loop ([Controller.Run]). Commands from the control surface, capture
// decisions, network completions, playback events and timer callbacks are
// all posted to that loop and processed one at a time, so the mode never
// changes concurrently.
//
// The microphone and the speaker are never live together: every entry into
// Speaking stops capture first and every entry into Listening stops playback
// first. Asynchronous results carry the generation they were started under
// and are dropped when the controller has moved on or the session completed.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/internal/capture"
	"github.com/MrWong99/intervox/internal/clock"
	"github.com/MrWong99/intervox/internal/dialogue"
	"github.com/MrWong99/intervox/internal/endpoint"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/playback"
	"github.com/MrWong99/intervox/internal/remote"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/pkg/audio"
)

// MinSettleDelay is the shortest pause between the end of playback and
// re-arming the microphone.
const MinSettleDelay = 500 * time.Millisecond

const inboxSize = 256

// Capture is the microphone side, implemented by *capture.Pipeline.
type Capture interface {
	Open(ctx context.Context) error
	StartTurn(id uint64) error
	StopTurn() audio.Segment
	Active() bool
	Close() error
}

// Transcriber is implemented by *transcribe.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, sessionID string, seg audio.Segment) (string, error)
}

// Dialogue is implemented by *dialogue.Client.
type Dialogue interface {
	Next(ctx context.Context, req dialogue.Request) (dialogue.Reply, error)
}

// Player is the speaker side, implemented by *playback.Pipeline.
type Player interface {
	Play(ctx context.Context, item playback.Item, onEvent func(playback.Event))
	Stop()
	Active() bool
}

// Config wires a Controller.
type Config struct {
	Session     *session.Session
	Capture     Capture
	Transcriber Transcriber
	Dialogue    Dialogue
	Player      Player

	Clock clock.Clock

	// SettleDelay is raised to MinSettleDelay when smaller.
	SettleDelay time.Duration

	Metrics *observe.Metrics
}

// Controller runs one interview session.
type Controller struct {
	sess    *session.Session
	capture Capture
	stt     Transcriber
	dlg     Dialogue
	player  Player
	clk     clock.Clock
	settle  time.Duration
	metrics *observe.Metrics
	log     *slog.Logger
	timer   *session.Timer

	inbox chan func()
	done  chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	// Loop-owned state below; touched only by the event loop.
	ctx        context.Context
	cancelJobs context.CancelFunc
	mode       Mode
	muted      bool
	inFlight   bool
	jobGen     uint64
	captureID  uint64
	playGen    uint64
	settleT    clock.Timer
	turnEnded  time.Time
}

// New returns a Controller for cfg. Call Run before issuing commands.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Session == nil:
		return nil, errors.New("turn: session is required")
	case cfg.Capture == nil, cfg.Player == nil:
		return nil, errors.New("turn: capture and playback are required")
	case cfg.Transcriber == nil, cfg.Dialogue == nil:
		return nil, errors.New("turn: transcriber and dialogue are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	c := &Controller{
		sess:    cfg.Session,
		capture: cfg.Capture,
		stt:     cfg.Transcriber,
		dlg:     cfg.Dialogue,
		player:  cfg.Player,
		clk:     cfg.Clock,
		settle:  max(cfg.SettleDelay, MinSettleDelay),
		metrics: cfg.Metrics,
		log:     slog.With("session_id", cfg.Session.ID()),
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Event),
	}
	c.timer = session.NewTimer(c.clk, c.sess.Duration(),
		func(rem time.Duration) { c.post(func() { c.onTick(rem) }) },
		func() { c.post(func() { c.complete(session.EndExpired) }) },
	)
	return c, nil
}

// Run processes events until ctx is cancelled. Cancelling ctx ends an
// active session as if End had been called.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-ctx.Done():
			if c.sess.Phase() == session.Active {
				c.complete(session.EndManual)
			}
			c.capture.Close()
			return nil
		}
	}
}

// Done is closed when Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// post queues fn for the loop. It gives up when the loop has exited.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// do runs fn on the loop and returns its error.
func (c *Controller) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- func() { reply <- fn() }:
	case <-c.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// ── Commands ────────────────────────────────────────────────────────────────

// Start acquires the microphone, activates the session and requests the
// interviewer's opening line. If the microphone cannot be acquired it
// returns a *StartError, the mode becomes Error and the session stays
// NotStarted.
func (c *Controller) Start() error {
	return c.do(c.start)
}

// Mute stops whichever pipeline is live. Muting twice is a no-op.
func (c *Controller) Mute() error { return c.do(c.mute) }

// Unmute resumes the interview: Processing if a reply is still being
// prepared, Listening otherwise. Unmuting when not muted is a no-op.
func (c *Controller) Unmute() error { return c.do(c.unmute) }

// ToggleMute flips the mute state and reports the new value.
func (c *Controller) ToggleMute() (bool, error) {
	var muted bool
	err := c.do(func() error {
		var err error
		if c.muted {
			err = c.unmute()
		} else {
			err = c.mute()
		}
		muted = c.muted
		return err
	})
	return muted, err
}

// SubmitText injects a typed answer in place of a spoken one.
func (c *Controller) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	return c.do(func() error { return c.submit(text) })
}

// End completes the session. Ending a completed session is a no-op.
func (c *Controller) End() error {
	return c.do(func() error {
		if c.sess.Phase() != session.Active {
			if c.mode == Completed {
				return nil
			}
			return ErrNotActive
		}
		c.complete(session.EndManual)
		return nil
	})
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := c.do(func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

// Summary renders the completed session.
func (c *Controller) Summary() (session.Summary, error) {
	return c.sess.Summary()
}

// Session returns the session driven by c.
func (c *Controller) Session() *session.Session { return c.sess }

// HandleCapture is the capture pipeline's result callback.
func (c *Controller) HandleCapture(r capture.Result) {
	c.post(func() { c.onCapture(r) })
}

// Subscribe registers an observer. Events are dropped for a subscriber
// whose buffer is full. The returned function unsubscribes and closes the
// channel.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// ── Loop handlers ───────────────────────────────────────────────────────────

func (c *Controller) start() error {
	if c.sess.Phase() != session.NotStarted {
		return ErrAlreadyStarted
	}
	if err := c.capture.Open(c.ctx); err != nil {
		reason := ReasonDeviceUnavailable
		if errors.Is(err, audio.ErrPermissionDenied) {
			reason = ReasonPermissionDenied
		}
		c.log.Error("cannot start interview", "reason", reason, "err", err)
		c.setMode(Error, string(reason))
		return &StartError{Reason: reason, Err: err}
	}
	if err := c.sess.Activate(c.clk.Now()); err != nil {
		return err
	}
	var jobCtx context.Context
	jobCtx, c.cancelJobs = context.WithCancel(c.ctx)
	c.ctx = jobCtx
	c.timer.Start()
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(jobCtx, 1)
	}
	c.log.Info("interview started", "type", c.sess.Type(), "duration", c.sess.Duration())
	c.setMode(Processing, "opening")
	c.requestReply("", "")
	return nil
}

func (c *Controller) mute() error {
	if c.sess.Phase() != session.Active {
		return ErrNotActive
	}
	if c.muted {
		return nil
	}
	c.muted = true
	c.stopSettle()
	c.capture.StopTurn()
	c.player.Stop()
	c.setMode(Muted, "muted")
	return nil
}

func (c *Controller) unmute() error {
	if c.sess.Phase() != session.Active {
		return ErrNotActive
	}
	if !c.muted {
		return nil
	}
	c.muted = false
	if c.inFlight {
		c.setMode(Processing, "unmuted")
		return nil
	}
	c.enterListening("unmuted")
	return nil
}

func (c *Controller) submit(text string) error {
	if c.sess.Phase() != session.Active {
		return ErrNotActive
	}
	if c.inFlight {
		return ErrBusy
	}
	c.stopSettle()
	c.player.Stop()
	c.capture.StopTurn()
	c.captureID++
	c.turnEnded = c.clk.Now()
	if !c.muted {
		c.setMode(Processing, "typed")
	}
	c.requestReply(text, "typed")
	return nil
}

func (c *Controller) onCapture(r capture.Result) {
	if c.mode != Listening || c.muted || r.TurnID != c.captureID {
		return
	}
	c.capture.StopTurn()
	switch r.Decision {
	case endpoint.TurnAbandoned:
		c.recordTurn("abandoned")
		c.log.Debug("turn abandoned, listening again", "turn", r.TurnID)
		c.armCapture()
	case endpoint.TurnComplete:
		c.turnEnded = c.clk.Now()
		c.setMode(Processing, "turn complete")
		c.transcribe(r.Segment)
	}
}

// transcribe runs the transcription of seg off the loop.
func (c *Controller) transcribe(seg audio.Segment) {
	c.jobGen++
	gen := c.jobGen
	c.inFlight = true
	ctx, id := c.ctx, c.sess.ID()
	go func() {
		text, err := c.stt.Transcribe(ctx, id, seg)
		c.post(func() { c.onTranscribed(gen, text, err) })
	}()
}

func (c *Controller) onTranscribed(gen uint64, text string, err error) {
	if gen != c.jobGen || c.sess.Phase() != session.Active {
		return
	}
	if err != nil {
		c.inFlight = false
		switch remote.Classify(err) {
		case remote.KindEmpty:
			c.recordTurn("empty")
			c.log.Debug("empty transcription, listening again")
			if !c.muted {
				c.enterListening("empty transcription")
			}
		default:
			c.recordTurn("failed")
			c.recover("transcription failed", err)
		}
		return
	}
	c.requestReply(text, "answered")
}

// requestReply sends message (empty for the opening) to the dialogue
// service. The candidate's text is committed together with the reply and
// outcome is counted once the reply arrives.
func (c *Controller) requestReply(message, outcome string) {
	c.jobGen++
	gen := c.jobGen
	c.inFlight = true
	ctx := c.ctx
	req := dialogue.Request{
		SessionID:     c.sess.ID(),
		Message:       message,
		InterviewType: c.sess.Type(),
		Duration:      c.sess.Duration(),
	}
	go func() {
		reply, err := c.dlg.Next(ctx, req)
		c.post(func() { c.onReply(gen, message, outcome, reply, err) })
	}()
}

func (c *Controller) onReply(gen uint64, message, outcome string, reply dialogue.Reply, err error) {
	if gen != c.jobGen || c.sess.Phase() != session.Active {
		return
	}
	c.inFlight = false
	if err != nil {
		if message != "" {
			c.recordTurn("failed")
		}
		c.recover("dialogue failed", err)
		return
	}
	if message != "" {
		c.appendUtterance(session.RoleUser, message)
		c.recordTurn(outcome)
	}
	c.appendUtterance(session.RoleSystem, reply.Text)

	if c.muted {
		c.log.Debug("reply recorded while muted, not played")
		return
	}
	c.enterSpeaking(playback.Item{Text: reply.Text, AudioURL: reply.AudioURL})
}

// recover passes through Error back to Listening.
func (c *Controller) recover(what string, err error) {
	c.log.Warn(what, "kind", remote.Classify(err), "err", err)
	if c.muted {
		return
	}
	c.setMode(Error, what)
	c.enterListening("recovered")
}

func (c *Controller) enterSpeaking(item playback.Item) {
	c.capture.StopTurn()
	c.playGen++
	gen := c.playGen
	c.setMode(Speaking, "reply")
	if c.metrics != nil && !c.turnEnded.IsZero() {
		observe.Observe(c.ctx, c.metrics.TurnDuration, c.clk.Now().Sub(c.turnEnded))
	}
	c.turnEnded = time.Time{}
	c.player.Play(c.ctx, item, func(ev playback.Event) {
		if ev.Kind == playback.Started {
			return
		}
		c.post(func() { c.onPlayback(gen, ev) })
	})
}

func (c *Controller) onPlayback(gen uint64, ev playback.Event) {
	if gen != c.playGen || c.mode != Speaking {
		return
	}
	if ev.Kind == playback.Failed {
		c.log.Warn("playback failed, continuing", "err", ev.Err)
	}
	c.stopSettle()
	c.settleT = c.clk.AfterFunc(c.settle, func() {
		c.post(func() { c.onSettled(gen) })
	})
}

func (c *Controller) onSettled(gen uint64) {
	if gen != c.playGen || c.mode != Speaking {
		return
	}
	c.settleT = nil
	c.enterListening("playback finished")
}

func (c *Controller) enterListening(reason string) {
	c.stopSettle()
	c.player.Stop()
	c.setMode(Listening, reason)
	c.armCapture()
}

func (c *Controller) armCapture() {
	c.captureID++
	if err := c.capture.StartTurn(c.captureID); err != nil {
		c.log.Error("cannot arm microphone", "err", err)
		c.setMode(Error, "microphone lost")
	}
}

func (c *Controller) stopSettle() {
	if c.settleT != nil {
		c.settleT.Stop()
		c.settleT = nil
	}
}

func (c *Controller) onTick(rem time.Duration) {
	if c.sess.Phase() != session.Active {
		return
	}
	c.sess.SetRemaining(rem)
	c.publish(Event{Kind: EventTick, Remaining: session.FormatCountdown(rem)})
}

// complete ends the session: both pipelines stop, the microphone is
// released and late results are ignored from here on.
func (c *Controller) complete(reason session.EndReason) {
	if !c.sess.Complete(c.clk.Now(), reason) {
		return
	}
	c.timer.Stop()
	c.stopSettle()
	c.capture.StopTurn()
	c.player.Stop()
	if err := c.capture.Close(); err != nil {
		c.log.Warn("release microphone", "err", err)
	}
	if c.cancelJobs != nil {
		c.cancelJobs()
	}
	c.jobGen++
	c.playGen++
	c.inFlight = false
	if c.metrics != nil {
		c.metrics.RecordSessionEnd(context.Background(), string(reason))
	}
	c.setMode(Completed, string(reason))
	c.log.Info("interview completed", "reason", reason, "turns", len(c.sess.Turns()))
	c.publish(Event{Kind: EventCompleted, EndReason: reason})
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func (c *Controller) setMode(m Mode, reason string) {
	from := c.mode
	if from == m {
		return
	}
	c.mode = m
	c.log.Debug("mode transition", "from", from, "to", m, "reason", reason)
	if c.metrics != nil {
		c.metrics.RecordModeTransition(context.Background(), from.String(), m.String())
	}
	c.publish(Event{Kind: EventMode, From: from, Reason: reason})
}

func (c *Controller) appendUtterance(role session.Role, text string) {
	u := session.Utterance{Role: role, Text: text, At: c.clk.Now()}
	if err := c.sess.Append(u); err != nil {
		c.log.Warn("utterance not recorded", "role", role, "err", err)
		return
	}
	c.publish(Event{Kind: EventUtterance, Utterance: &u})
}

func (c *Controller) recordTurn(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordTurn(context.Background(), outcome)
	}
}

func (c *Controller) snapshot() Snapshot {
	rem := c.sess.Remaining()
	return Snapshot{
		SessionID:     c.sess.ID(),
		InterviewType: c.sess.Type(),
		Mode:          c.mode,
		Muted:         c.muted,
		Phase:         c.sess.Phase(),
		Remaining:     rem,
		Countdown:     session.FormatCountdown(rem),
		Turns:         c.sess.Turns(),
		InFlight:      c.inFlight,
	}
}

// publish stamps ev and fans it out without blocking the loop.
func (c *Controller) publish(ev Event) {
	ev.SessionID = c.sess.ID()
	ev.At = c.clk.Now()
	ev.Mode = c.mode
	ev.Muted = c.muted
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
