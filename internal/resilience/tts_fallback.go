package resilience

import (
	"context"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
//
// Audio is always delivered in the primary's format; chunks from a fallback
// with a different format are converted on the fly.
type TTSFallback struct {
	group  *FallbackGroup[tts.Provider]
	format audio.Format
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group:  NewFallbackGroup(primary, primaryName, cfg),
		format: primary.Format(),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Format returns the primary provider's format.
func (f *TTSFallback) Format() audio.Format { return f.format }

// Synthesize starts synthesis on the first healthy provider. Only stream
// setup is covered by failover; mid-stream failures end the stream early.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	var from audio.Format
	ch, err := ExecuteWithResult(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		from = p.Format()
		return p.Synthesize(ctx, text, voice)
	})
	if err != nil {
		return nil, err
	}
	if from == f.format {
		return ch, nil
	}
	return convertChunks(ch, from, f.format), nil
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}

// convertChunks re-encodes a PCM chunk stream. Partial frames are carried
// into the next chunk. The output closes when in does.
func convertChunks(in <-chan []byte, from, to audio.Format) <-chan []byte {
	out := make(chan []byte, cap(in))
	frame := 2 * max(from.Channels, 1)
	go func() {
		defer close(out)
		var carry []byte
		for chunk := range in {
			buf := append(carry, chunk...)
			n := len(buf) - len(buf)%frame
			carry = append([]byte(nil), buf[n:]...)
			if n == 0 {
				continue
			}
			out <- audio.ConvertPCM(buf[:n], from, to)
		}
	}()
	return out
}
