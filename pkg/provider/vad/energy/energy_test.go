package energy

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/vad"
)

// window returns n samples of constant amplitude.
func window(amp int16, n int) []byte {
	b := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(amp))
	}
	return b
}

func TestSession_Transitions(t *testing.T) {
	t.Parallel()

	h, err := New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.01})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer h.Close()

	steps := []struct {
		amp  int16
		want vad.VADEventType
	}{
		{0, vad.VADSilence},
		{2000, vad.VADSpeechStart},
		{2000, vad.VADSpeechContinue},
		{10, vad.VADSpeechEnd},
		{10, vad.VADSilence},
		{3000, vad.VADSpeechStart},
	}
	for i, s := range steps {
		ev, err := h.ProcessFrame(window(s.amp, 1600))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != s.want {
			t.Errorf("step %d: type = %v, want %v", i, ev.Type, s.want)
		}
	}
}

func TestSession_ThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	// 328/32768 is just above 0.01; 327/32768 is just below.
	h, _ := New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.01})
	if ev, _ := h.ProcessFrame(window(327, 160)); ev.IsSpeech() {
		t.Errorf("level %.5f classified as speech", ev.Probability)
	}
	if ev, _ := h.ProcessFrame(window(328, 160)); !ev.IsSpeech() {
		t.Errorf("level %.5f classified as silence", ev.Probability)
	}
}

func TestSession_Hysteresis(t *testing.T) {
	t.Parallel()

	h, _ := New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.1, SilenceThreshold: 0.02})
	h.ProcessFrame(window(5000, 160))

	// Between the thresholds: the run continues.
	if ev, _ := h.ProcessFrame(window(1500, 160)); ev.Type != vad.VADSpeechContinue {
		t.Errorf("type = %v, want speech_continue", ev.Type)
	}
	h.Reset()
	if ev, _ := h.ProcessFrame(window(1500, 160)); ev.Type != vad.VADSilence {
		t.Errorf("after Reset type = %v, want silence", ev.Type)
	}
}

func TestSession_FixedFrameSize(t *testing.T) {
	t.Parallel()

	h, _ := New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 0.5})
	if _, err := h.ProcessFrame(window(0, 320)); err != nil {
		t.Errorf("20 ms frame: %v", err)
	}
	if _, err := h.ProcessFrame(window(0, 100)); err == nil {
		t.Error("expected error for short frame")
	}
}

func TestSession_Closed(t *testing.T) {
	t.Parallel()

	h, _ := New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.5})
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := h.ProcessFrame(window(0, 10)); !errors.Is(err, vad.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	t.Parallel()

	bad := []vad.Config{
		{SampleRate: 0, SpeechThreshold: 0.1},
		{SampleRate: 16000, SpeechThreshold: 1.5},
		{SampleRate: 16000, SpeechThreshold: 0.1, SilenceThreshold: 0.2},
	}
	for _, cfg := range bad {
		if _, err := New().NewSession(cfg); err == nil {
			t.Errorf("NewSession(%+v) succeeded, want error", cfg)
		}
	}
}
