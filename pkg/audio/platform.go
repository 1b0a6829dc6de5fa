// Package audio defines the PCM types and device interfaces used by the
// interview engine.
//
// The two device abstractions are:
//
//   - [Microphone] — a capture device held open for a whole interview
//     session, delivering [AudioFrame] values on a channel.
//   - [Speaker] — an output device that plays one PCM stream at a time.
//
// Both are obtained from a [Platform]. The real implementation lives in
// audio/malgo; tests use audio/mock. The interfaces are deliberately narrow so
// that the capture and playback pipelines stay independent of the backing
// sound system.
//
// This package lives under pkg/ because external code (other device
// back-ends) is expected to implement [Platform].
package audio

import (
	"context"
	"errors"
	"io"
)

// ErrPermissionDenied is returned when the operating system refuses access to
// the microphone. It is fatal to starting a session.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ErrDeviceUnavailable is returned when no usable capture or playback device
// exists or the device is held by another process. It is fatal to starting a
// session.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("audio: device closed")

// Microphone is a capture device.
//
// Implementations must be safe for concurrent use.
type Microphone interface {
	// Open acquires the device and starts delivering frames. The returned
	// channel is closed when the microphone is closed or ctx is cancelled.
	// Open returns an error wrapping [ErrPermissionDenied] or
	// [ErrDeviceUnavailable] when the device cannot be acquired.
	// Calling Open on an already open microphone returns an error.
	Open(ctx context.Context) (<-chan AudioFrame, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Speaker is a playback device.
//
// Implementations must be safe for concurrent use, but play at most one
// stream at a time.
type Speaker interface {
	// Format returns the PCM format the device expects. Callers convert
	// their audio to this format before calling Play.
	Format() Format

	// Play streams pcm to the device and blocks until the stream is
	// exhausted and the device buffer has drained, or ctx is cancelled. On
	// cancellation the output stops immediately and ctx.Err() is returned.
	Play(ctx context.Context, pcm io.Reader) error

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Platform is the entry point for a sound system.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Microphone returns the default capture device, unopened.
	Microphone() (Microphone, error)

	// Speaker returns the default playback device, ready to play.
	Speaker() (Speaker, error)

	// Close releases platform-wide resources. Devices obtained from the
	// platform must be closed first.
	Close() error
}
