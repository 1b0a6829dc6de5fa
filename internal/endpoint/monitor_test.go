package endpoint

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/vad"
	"github.com/MrWong99/intervox/pkg/provider/vad/energy"
	"github.com/MrWong99/intervox/pkg/provider/vad/mock"
)

func tone(amp int16, n int) []byte {
	b := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(amp))
	}
	return b
}

func newEnergyMonitor(t *testing.T) *Monitor {
	t.Helper()
	h, err := energy.New().NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 0.01})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return NewMonitor(h)
}

func TestMonitor_SamplesWindowSinceLastSample(t *testing.T) {
	t.Parallel()

	m := newEnergyMonitor(t)
	defer m.Close()

	m.Write(tone(3000, 800))
	m.Write(tone(3000, 800))
	s := m.Sample(t0)
	if !s.Sound {
		t.Errorf("loud window: Sound = false (level %.4f)", s.Level)
	}
	if !s.At.Equal(t0) {
		t.Errorf("At = %v, want %v", s.At, t0)
	}

	// Nothing written since: the next sample is silence.
	if s := m.Sample(t0); s.Sound || s.Level != 0 {
		t.Errorf("empty window = %+v, want silence", s)
	}

	m.Write(tone(50, 1600))
	if s := m.Sample(t0); s.Sound {
		t.Errorf("quiet window classified as sound (level %.4f)", s.Level)
	}
}

func TestMonitor_ResetDropsPendingAudio(t *testing.T) {
	t.Parallel()

	m := newEnergyMonitor(t)
	m.Write(tone(3000, 1600))
	m.Reset()
	if s := m.Sample(t0); s.Sound {
		t.Error("audio written before Reset was sampled")
	}
}

func TestMonitor_VADErrorIsSilence(t *testing.T) {
	t.Parallel()

	sess := &mock.Session{ProcessFrameErr: errors.New("model crashed")}
	m := NewMonitor(sess)
	m.Write(tone(3000, 160))
	if s := m.Sample(t0); s.Sound {
		t.Error("Sound = true on vad error")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("vad Close calls = %d, want 1", sess.CloseCallCount)
	}
}

func TestMonitor_DelegatesToVAD(t *testing.T) {
	t.Parallel()

	// Quiet audio the scripted VAD still calls speech, and the reverse.
	sess := &mock.Session{Speech: []bool{true, true, false}}
	m := NewMonitor(sess)
	defer m.Close()

	want := []bool{true, true, false}
	for i, w := range want {
		m.Write(tone(10, 160))
		if got := m.Sample(t0).Sound; got != w {
			t.Errorf("window %d: Sound = %v, want %v", i, got, w)
		}
	}
	if got := m.Sample(t0); got.Sound {
		t.Error("empty window reported sound")
	}
	if got := sess.Frames(); got != 3 {
		t.Errorf("vad saw %d windows, want 3 (empty windows skip the vad)", got)
	}

	m.Reset()
	if sess.ResetCallCount != 1 {
		t.Errorf("vad Reset calls = %d, want 1", sess.ResetCallCount)
	}
}
