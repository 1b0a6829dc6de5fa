package resilience

import (
	"context"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over between transcription
// back-ends, e.g. a local whisper server backed by a hosted API.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an STTFallback preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another back-end, tried after those added earlier.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// Transcribe returns the first successful transcript. An empty segment is
// rejected before any back-end sees it.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if req.Audio.Empty() {
		return stt.Transcript{}, stt.ErrNoAudio
	}
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}
