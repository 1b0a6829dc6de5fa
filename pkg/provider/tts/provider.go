// Package tts defines the Provider interface for text-to-speech backends.
//
// The playback pipeline synthesises one complete reply at a time, so the
// interface takes the whole text and streams back raw 16-bit PCM chunks in the
// provider's native [audio.Format]. The caller converts to the speaker format.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/intervox/pkg/audio"
)

// ErrEmptyText is returned when asked to synthesise blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts speaking text with voice and returns a channel of
	// PCM chunks in Format(). The channel is closed when synthesis finishes,
	// fails, or ctx is cancelled; callers must drain it (see [audio.Drain]).
	//
	// A non-nil error means synthesis could not start. Failures after the
	// first chunk are logged by the provider and end the stream early.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan []byte, error)

	// Format returns the PCM format of synthesised chunks.
	Format() audio.Format

	// ListVoices returns the voices the backend offers.
	ListVoices(ctx context.Context) ([]Voice, error)
}
