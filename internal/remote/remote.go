// Package remote holds the error taxonomy shared by the network clients of
// the interview engine (transcription and dialogue) and a small HTTP helper
// that produces it.
//
// Every failure of a remote call is one of:
//
//   - *NetworkError: the request never produced an HTTP response.
//   - *ServerError: the service answered with a non-2xx status or a body
//     that does not match the contract.
//   - ErrEmptyResult: the call succeeded but carried no usable text.
//
// The turn controller treats all three as recoverable and yields the floor
// back to the candidate.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrEmptyResult is returned when a remote call succeeded but its result is
// empty (e.g. silence transcribed to "").
var ErrEmptyResult = errors.New("remote: empty result")

// NetworkError wraps a transport failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError reports an unusable response. Status is the HTTP status code,
// or 0 when the status was fine but the body violated the contract.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: server error", e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

// Kind classifies an error returned by a remote call.
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindServer
	KindEmpty
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindEmpty:
		return "empty"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Classify returns the Kind of err. Errors outside the taxonomy count as
// network errors.
func Classify(err error) Kind {
	var (
		ne *NetworkError
		se *ServerError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrEmptyResult):
		return KindEmpty
	case errors.As(err, &se):
		return KindServer
	case errors.As(err, &ne):
		return KindNetwork
	default:
		return KindNetwork
	}
}

// statusCoder is implemented by provider errors that carry an HTTP status,
// such as *stt.HTTPError.
type statusCoder interface {
	HTTPStatus() int
}

// Wrap maps an arbitrary provider error into the taxonomy under op. Errors
// already in the taxonomy and context cancellation pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ne *NetworkError
		se *ServerError
		sc statusCoder
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrEmptyResult),
		errors.As(err, &ne), errors.As(err, &se):
		return err
	case errors.As(err, &sc):
		return &ServerError{Op: op, Status: sc.HTTPStatus(), Body: err.Error()}
	default:
		return &NetworkError{Op: op, Err: err}
	}
}

const maxErrorBody = 512

// Do sends req and returns the response body of a 2xx answer. A transport
// failure yields *NetworkError; any other status yields *ServerError with a
// truncated body.
func Do(c *http.Client, op string, req *http.Request) ([]byte, error) {
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &ServerError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
