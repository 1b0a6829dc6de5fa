package dialogue

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/intervox/internal/backend"
	"github.com/MrWong99/intervox/internal/remote"
)

// Local is a [Service] calling a [backend.Interviewer] in the same process.
// It lets the engine run without a separate backend.
type Local struct {
	iv *backend.Interviewer
}

var _ Service = (*Local)(nil)

// NewLocal returns a Local over iv.
func NewLocal(iv *backend.Interviewer) *Local {
	return &Local{iv: iv}
}

// Next implements [Service]. Model failures surface as a server error with
// status 503, matching what the HTTP backend would answer.
func (l *Local) Next(ctx context.Context, req Request) (Reply, error) {
	text, err := l.iv.Reply(ctx, backend.Turn{
		SessionID: req.SessionID,
		Message:   req.Message,
		Type:      req.InterviewType,
		Duration:  req.Duration,
	})
	switch {
	case err == nil:
		return Reply{Text: text}, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Reply{}, err
	case errors.Is(err, backend.ErrModelUnavailable):
		return Reply{}, &remote.ServerError{Op: op, Status: http.StatusServiceUnavailable, Body: err.Error()}
	default:
		return Reply{}, &remote.ServerError{Op: op, Status: http.StatusInternalServerError, Body: err.Error()}
	}
}
