// Package stt defines the Provider interface for batch speech-to-text
// backends.
//
// The interview engine records one bounded segment per user turn and needs
// exactly one transcript back, so providers are request/response: a
// [Request] carries a finalised [audio.Segment] and the provider returns the
// recognised text. An empty Text is a valid result (the user produced only
// noise); callers decide what that means.
//
// Providers report HTTP-level failures as [*HTTPError] so that callers can
// tell a server rejection from a transport failure without importing the
// provider package.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

// ErrNoAudio is returned when a Request carries an empty segment.
var ErrNoAudio = errors.New("stt: no audio in request")

// Request is one transcription job.
type Request struct {
	// Audio is the recorded user turn.
	Audio audio.Segment

	// SessionID identifies the interview for backends that keep per-session
	// state. Providers that do not need it ignore it.
	SessionID string

	// Language is a BCP-47 hint ("en", "de"). Empty uses the provider
	// default.
	Language string
}

// Transcript is the result of a transcription.
type Transcript struct {
	Text string

	// Language reported by the backend, if any.
	Language string

	// Elapsed is the wall-clock time the provider spent on the request.
	Elapsed time.Duration
}

// Provider transcribes recorded segments.
type Provider interface {
	// Transcribe returns the text spoken in req.Audio. It returns ErrNoAudio
	// for an empty segment and an *HTTPError when the backend answered with a
	// failure status.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}

// HTTPError reports a non-success HTTP status from a transcription backend.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatus returns the status code.
func (e *HTTPError) HTTPStatus() int { return e.StatusCode }
