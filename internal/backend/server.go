package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/remote"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/internal/transcribe"
	"github.com/MrWong99/intervox/pkg/audio"
)

// DefaultDurationMinutes is assumed when a chat request names no duration.
const DefaultDurationMinutes = 15

// maxUpload bounds the multipart body of a transcription request.
const maxUpload = 32 << 20

// Server serves the backend endpoints:
//
//	POST /api/interview/chat/  JSON {sessionId, message, interviewType, duration}
//	POST /api/interview/stt/   multipart "audio" + "sessionId"
type Server struct {
	interviewer *Interviewer
	stt         *transcribe.Client
}

// NewServer returns a Server. stt may be nil, in which case the
// transcription endpoint answers 501.
func NewServer(iv *Interviewer, stt *transcribe.Client) *Server {
	return &Server{interviewer: iv, stt: stt}
}

// Register adds the backend routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/interview/chat/", s.handleChat)
	mux.HandleFunc("POST /api/interview/stt/", s.handleSTT)
}

// chatRequest accepts both the camelCase names sent by the engine and the
// snake_case aliases of older clients.
type chatRequest struct {
	Message            string   `json:"message"`
	SessionID          string   `json:"sessionId"`
	SessionIDAlias     string   `json:"session_id"`
	InterviewType      string   `json:"interviewType"`
	InterviewTypeAlias string   `json:"interview_type"`
	Duration           *float64 `json:"duration"`
}

type chatResponse struct {
	AIResponse    string `json:"ai_response"`
	SessionID     string `json:"session_id"`
	InterviewType string `json:"interview_type"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Details: err.Error()})
		return
	}

	sessionID := firstNonEmpty(req.SessionID, req.SessionIDAlias)
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}

	typ := session.Technical
	if strings.EqualFold(strings.TrimSpace(firstNonEmpty(req.InterviewType, req.InterviewTypeAlias)), string(session.Behavioral)) {
		typ = session.Behavioral
	}
	minutes := float64(DefaultDurationMinutes)
	if req.Duration != nil && *req.Duration > 0 {
		minutes = *req.Duration
	}

	ctx := observe.WithSessionID(r.Context(), sessionID)
	log := observe.Logger(ctx)
	log.Debug("chat request", "interview_type", typ, "duration_min", minutes, "chars", len(req.Message))

	reply, err := s.interviewer.Reply(ctx, Turn{
		SessionID: sessionID,
		Message:   req.Message,
		Type:      typ,
		Duration:  time.Duration(minutes * float64(time.Minute)),
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrModelUnavailable):
		log.Warn("interviewer model failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Failed to communicate with AI interviewer. Please try again."})
		return
	default:
		log.Error("chat request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{AIResponse: reply, SessionID: sessionID, InterviewType: string(typ)})
}

type sttResponse struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "Speech-to-text is not configured."})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing 'audio' file in request.", Details: err.Error()})
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing 'audio' file in request."})
		return
	}
	defer file.Close()
	sessionID := firstNonEmpty(r.FormValue("sessionId"), r.FormValue("session_id"))

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Could not read audio.", Details: err.Error()})
		return
	}
	seg, err := decodeUpload(raw)
	if err != nil {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "Unsupported audio format.", Details: err.Error()})
		return
	}

	ctx := observe.WithSessionID(r.Context(), sessionID)
	text, err := s.stt.Transcribe(ctx, sessionID, seg)
	switch remote.Classify(err) {
	case remote.KindNone:
		writeJSON(w, http.StatusOK, sttResponse{Text: text, SessionID: sessionID})
	case remote.KindEmpty:
		// Silence is a result, not a failure: the engine listens again.
		writeJSON(w, http.StatusOK, sttResponse{SessionID: sessionID})
	default:
		observe.Logger(ctx).Warn("transcription failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Failed to transcribe audio.", Details: err.Error()})
	}
}

// decodeUpload turns an uploaded WAV or MP3 file into a segment.
func decodeUpload(raw []byte) (audio.Segment, error) {
	switch audio.Sniff(raw) {
	case "wav":
		pcm, f, err := audio.DecodeWAV(raw)
		if err != nil {
			return audio.Segment{}, err
		}
		return audio.Segment{PCM: pcm, Format: f, HadSpeech: true}, nil
	case "mp3":
		rd, f, err := audio.DecodeMP3(bytes.NewReader(raw))
		if err != nil {
			return audio.Segment{}, err
		}
		pcm, err := io.ReadAll(rd)
		if err != nil {
			return audio.Segment{}, fmt.Errorf("decode mp3: %w", err)
		}
		return audio.Segment{PCM: pcm, Format: f, HadSpeech: true}, nil
	default:
		return audio.Segment{}, errors.New("expected WAV or MP3")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}
