// Package web serves the control API of the interview engine and the live
// state feed.
//
//	POST /api/sessions                 start an interview
//	GET  /api/sessions/{id}            snapshot ("current" or the session id)
//	POST /api/sessions/{id}/mute       mute the microphone
//	POST /api/sessions/{id}/unmute     unmute it
//	POST /api/sessions/{id}/text       typed answer {"text": ...}
//	POST /api/sessions/{id}/end        end the interview
//	GET  /api/sessions/{id}/summary    summary once completed
//	GET  /api/sessions/{id}/events     websocket stream of turn events
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/internal/turn"
)

// currentID addresses whichever interview is current.
const currentID = "current"

// writeTimeout bounds one websocket write.
const writeTimeout = 5 * time.Second

// Sessions is the session control surface. [app.SessionManager] implements
// it.
type Sessions interface {
	Start(ctx context.Context, req app.StartRequest) (turn.Snapshot, error)
	Snapshot() (turn.Snapshot, error)
	Mute() error
	Unmute() error
	SubmitText(text string) error
	End() error
	Summary() (session.Summary, error)
	Subscribe(buffer int) (<-chan turn.Event, func(), error)
}

var _ Sessions = (*app.SessionManager)(nil)

// Server handles the control API.
type Server struct {
	sessions Sessions
}

// New returns a Server over sessions.
func New(sessions Sessions) *Server {
	return &Server{sessions: sessions}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", s.handleStart)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSnapshot)
	mux.HandleFunc("POST /api/sessions/{id}/mute", s.command(s.sessions.Mute))
	mux.HandleFunc("POST /api/sessions/{id}/unmute", s.command(s.sessions.Unmute))
	mux.HandleFunc("POST /api/sessions/{id}/end", s.command(s.sessions.End))
	mux.HandleFunc("POST /api/sessions/{id}/text", s.handleText)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)
}

// Handler assembles the full engine surface: the control API, health
// probes and Prometheus metrics, wrapped in the observability middleware.
func Handler(s *Server, h *health.Handler, m *observe.Metrics, metricsPath string) http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	h.Register(mux)
	if metricsPath != "" {
		mux.Handle("GET "+metricsPath, promhttp.Handler())
	}
	return observe.Middleware(m)(mux)
}

type startRequest struct {
	InterviewType   string `json:"interviewType"`
	DurationMinutes int    `json:"durationMinutes"`
}

type textRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error  string           `json:"error"`
	Reason turn.StartReason `json:"reason,omitempty"`
}

type summaryResponse struct {
	session.Summary
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Transcript     string `json:"transcript"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.DurationMinutes < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "durationMinutes must not be negative"})
		return
	}

	snap, err := s.sessions.Start(r.Context(), app.StartRequest{
		InterviewType: req.InterviewType,
		Duration:      time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+snap.SessionID)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// command returns a handler that runs fn on the addressed session and
// replies with the resulting snapshot.
func (s *Server) command(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.resolve(w, r); !ok {
			return
		}
		if err := fn(); err != nil {
			writeError(w, err)
			return
		}
		s.writeSnapshot(w, http.StatusOK)
	}
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolve(w, r); !ok {
		return
	}
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.sessions.SubmitText(req.Text); err != nil {
		writeError(w, err)
		return
	}
	s.writeSnapshot(w, http.StatusAccepted)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolve(w, r); !ok {
		return
	}
	sum, err := s.sessions.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Summary:        sum,
		ElapsedSeconds: int(sum.Elapsed / time.Second),
		Transcript:     sum.Transcript(),
	})
}

// handleEvents streams turn events as JSON text messages until the client
// goes away or the interview completes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.resolve(w, r)
	if !ok {
		return
	}
	events, unsubscribe, err := s.sessions.Subscribe(64)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("web: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	// Reads are not expected; CloseRead handles control frames and cancels
	// ctx when the client disconnects.
	ctx := observe.WithSessionID(conn.CloseRead(r.Context()), snap.SessionID)
	log := observe.Logger(ctx)
	log.Debug("event stream opened")

	if snap.Phase == session.Completed {
		conn.Close(websocket.StatusNormalClosure, "interview completed")
		return
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream closed by client")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				log.Debug("event stream write failed", "err", err)
				return
			}
			if ev.Kind == turn.EventCompleted {
				conn.Close(websocket.StatusNormalClosure, "interview completed")
				return
			}
		}
	}
}

// resolve checks that the {id} path value names the current interview and
// returns its snapshot. It writes the error response itself.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (turn.Snapshot, bool) {
	snap, err := s.sessions.Snapshot()
	if err != nil {
		writeError(w, err)
		return turn.Snapshot{}, false
	}
	if id := r.PathValue("id"); id != currentID && id != snap.SessionID {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown session " + id})
		return turn.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) writeSnapshot(w http.ResponseWriter, status int) {
	snap, err := s.sessions.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, snap)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var se *turn.StartError
	switch {
	case errors.As(err, &se):
		if se.Reason == turn.ReasonPermissionDenied {
			return http.StatusForbidden
		}
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, turn.ErrEmptyText),
		errors.Is(err, session.ErrUnknownType),
		errors.Is(err, session.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrSessionActive),
		errors.Is(err, turn.ErrBusy),
		errors.Is(err, turn.ErrNotActive),
		errors.Is(err, turn.ErrAlreadyStarted),
		errors.Is(err, session.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, turn.ErrStopped):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	res := errorResponse{Error: err.Error()}
	if se := (*turn.StartError)(nil); errors.As(err, &se) {
		res.Reason = se.Reason
	}
	if status == http.StatusInternalServerError {
		slog.Error("web: request failed", "err", err)
		res.Error = strings.TrimSpace(http.StatusText(status))
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: encode response", "err", err)
	}
}
