package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/intervox/internal/capture"
	"github.com/MrWong99/intervox/internal/clock"
	"github.com/MrWong99/intervox/internal/endpoint"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/playback"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/internal/turn"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/provider/vad"
)

var (
	// ErrSessionActive is returned by Start while an interview is running.
	ErrSessionActive = errors.New("app: an interview is already in progress")

	// ErrNoSession is returned when no interview has been started yet.
	ErrNoSession = errors.New("app: no interview")
)

// StartRequest selects the interview to run. Zero fields fall back to the
// configured defaults.
type StartRequest struct {
	InterviewType string
	Duration      time.Duration
}

// Settings are the per-session parameters that config hot reload may change.
// They apply to sessions started afterwards.
type Settings struct {
	DefaultType     session.InterviewType
	DefaultDuration time.Duration
	Endpointing     endpoint.Params
	SettleDelay     time.Duration
}

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	Platform    audio.Platform
	VAD         vad.Engine
	Transcriber turn.Transcriber
	Dialogue    turn.Dialogue

	// TTS synthesises replies that carry no audio URL. May be nil.
	TTS         tts.Provider
	TTSName     string
	Voice       tts.Voice
	AudioClient *http.Client
	Settings    Settings
	Clock       clock.Clock
	Metrics     *observe.Metrics

	// Archive receives the summary of every completed interview. May be nil.
	Archive Archiver
}

// Archiver stores summaries of completed interviews.
type Archiver interface {
	Save(session.Summary) error
}

// live is one started interview and the resources it owns.
type live struct {
	ctrl      *turn.Controller
	speaker   audio.Speaker
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (l *live) closeSpeaker() {
	l.closeOnce.Do(func() {
		if err := l.speaker.Close(); err != nil {
			slog.Warn("release speaker", "session_id", l.ctrl.Session().ID(), "err", err)
		}
	})
}

// SessionManager runs one interview at a time. The last interview stays
// available after it completes so that its summary can be read; starting a
// new one releases it. All exported methods are safe for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig

	mu       sync.Mutex
	settings Settings
	current  *live
}

// NewSessionManager returns a SessionManager for cfg.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	s := cfg.Settings
	if s.DefaultType == "" {
		s.DefaultType = session.Technical
	}
	if s.DefaultDuration <= 0 {
		s.DefaultDuration = 15 * time.Minute
	}
	if s.Endpointing == (endpoint.Params{}) {
		s.Endpointing = endpoint.DefaultParams()
	}
	return &SessionManager{cfg: cfg, settings: s}
}

// Settings returns the parameters the next session will use.
func (sm *SessionManager) Settings() Settings {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.settings
}

// UpdateSettings applies fn to the settings used by later sessions.
func (sm *SessionManager) UpdateSettings(fn func(*Settings)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	fn(&sm.settings)
}

// Start builds the capture and playback pipelines for a new interview,
// starts its controller and returns the first snapshot. It returns
// [ErrSessionActive] while another interview runs and a *[turn.StartError]
// when the audio devices cannot be acquired.
func (sm *SessionManager) Start(ctx context.Context, req StartRequest) (turn.Snapshot, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current != nil {
		if snap, err := sm.current.ctrl.Snapshot(); err == nil && snap.Phase != session.Completed {
			return turn.Snapshot{}, fmt.Errorf("%w (id=%s)", ErrSessionActive, snap.SessionID)
		}
		sm.release(sm.current)
		sm.current = nil
	}

	typ := sm.settings.DefaultType
	if req.InterviewType != "" {
		t, err := session.ParseInterviewType(req.InterviewType)
		if err != nil {
			return turn.Snapshot{}, err
		}
		typ = t
	}
	dur := req.Duration
	if dur == 0 {
		dur = sm.settings.DefaultDuration
	}
	sess, err := session.New(session.NewID(sm.cfg.Clock.Now()), typ, dur)
	if err != nil {
		return turn.Snapshot{}, err
	}

	cur, err := sm.build(sess)
	if err != nil {
		return turn.Snapshot{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cur.cancel = cancel
	go func() {
		if err := cur.ctrl.Run(runCtx); err != nil {
			slog.Error("turn controller stopped", "session_id", sess.ID(), "err", err)
		}
	}()

	if err := cur.ctrl.Start(); err != nil {
		sm.release(cur)
		return turn.Snapshot{}, err
	}

	sub, unsubscribe := cur.ctrl.Subscribe(64)
	go sm.reap(cur, sub, unsubscribe)
	sm.current = cur

	slog.Info("interview started",
		"session_id", sess.ID(),
		"interview_type", typ,
		"duration", dur,
	)
	return cur.ctrl.Snapshot()
}

// build wires the devices and pipelines of one session.
func (sm *SessionManager) build(sess *session.Session) (*live, error) {
	s := sm.settings

	mic, err := sm.cfg.Platform.Microphone()
	if err != nil {
		return nil, startError(err)
	}
	spk, err := sm.cfg.Platform.Speaker()
	if err != nil {
		return nil, startError(err)
	}

	var ctrl *turn.Controller
	capt, err := capture.New(mic, capture.Config{
		Params: s.Endpointing,
		VAD:    sm.cfg.VAD,
		Clock:  sm.cfg.Clock,
	}, func(r capture.Result) { ctrl.HandleCapture(r) })
	if err != nil {
		spk.Close()
		return nil, fmt.Errorf("app: build capture: %w", err)
	}

	player, err := playback.New(playback.Config{
		Speaker:      spk,
		TTS:          sm.cfg.TTS,
		Voice:        sm.cfg.Voice,
		HTTPClient:   sm.cfg.AudioClient,
		Metrics:      sm.cfg.Metrics,
		ProviderName: sm.cfg.TTSName,
	})
	if err != nil {
		spk.Close()
		return nil, fmt.Errorf("app: build playback: %w", err)
	}

	ctrl, err = turn.New(turn.Config{
		Session:     sess,
		Capture:     capt,
		Transcriber: sm.cfg.Transcriber,
		Dialogue:    sm.cfg.Dialogue,
		Player:      player,
		Clock:       sm.cfg.Clock,
		SettleDelay: s.SettleDelay,
		Metrics:     sm.cfg.Metrics,
	})
	if err != nil {
		spk.Close()
		return nil, fmt.Errorf("app: build controller: %w", err)
	}
	return &live{ctrl: ctrl, speaker: spk}, nil
}

func startError(err error) error {
	reason := turn.ReasonDeviceUnavailable
	if errors.Is(err, audio.ErrPermissionDenied) {
		reason = turn.ReasonPermissionDenied
	}
	return &turn.StartError{Reason: reason, Err: err}
}

// reap releases the speaker once the interview completes and archives the
// summary. The controller itself keeps running so that the summary stays
// readable.
func (sm *SessionManager) reap(cur *live, events <-chan turn.Event, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case ev := <-events:
			if ev.Kind == turn.EventCompleted {
				cur.closeSpeaker()
				sm.archive(cur.ctrl)
				return
			}
		case <-cur.ctrl.Done():
			return
		}
	}
}

func (sm *SessionManager) archive(ctrl *turn.Controller) {
	if sm.cfg.Archive == nil {
		return
	}
	sum, err := ctrl.Summary()
	if err == nil {
		err = sm.cfg.Archive.Save(sum)
	}
	if err != nil {
		slog.Warn("archive interview", "session_id", ctrl.Session().ID(), "err", err)
	}
}

// release stops cur's controller, waits for it to exit and closes the
// speaker. Must hold sm.mu.
func (sm *SessionManager) release(cur *live) {
	cur.cancel()
	<-cur.ctrl.Done()
	cur.closeSpeaker()
}

func (sm *SessionManager) controller() (*turn.Controller, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current == nil {
		return nil, ErrNoSession
	}
	return sm.current.ctrl, nil
}

// Snapshot returns the state of the current or last interview.
func (sm *SessionManager) Snapshot() (turn.Snapshot, error) {
	c, err := sm.controller()
	if err != nil {
		return turn.Snapshot{}, err
	}
	return c.Snapshot()
}

// Mute silences the microphone of the current interview.
func (sm *SessionManager) Mute() error {
	c, err := sm.controller()
	if err != nil {
		return err
	}
	return c.Mute()
}

// Unmute re-enables the microphone of the current interview.
func (sm *SessionManager) Unmute() error {
	c, err := sm.controller()
	if err != nil {
		return err
	}
	return c.Unmute()
}

// SubmitText sends a typed answer.
func (sm *SessionManager) SubmitText(text string) error {
	c, err := sm.controller()
	if err != nil {
		return err
	}
	return c.SubmitText(text)
}

// End finishes the current interview.
func (sm *SessionManager) End() error {
	c, err := sm.controller()
	if err != nil {
		return err
	}
	return c.End()
}

// Summary returns the summary of the current interview once it completed.
func (sm *SessionManager) Summary() (session.Summary, error) {
	c, err := sm.controller()
	if err != nil {
		return session.Summary{}, err
	}
	return c.Summary()
}

// Subscribe streams events of the current interview.
func (sm *SessionManager) Subscribe(buffer int) (<-chan turn.Event, func(), error) {
	c, err := sm.controller()
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := c.Subscribe(buffer)
	return ch, cancel, nil
}

// Shutdown ends the current interview, if any, and releases its devices.
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current == nil {
		return
	}
	id := sm.current.ctrl.Session().ID()
	sm.release(sm.current)
	sm.current = nil
	slog.Info("interview released", "session_id", id)
}
