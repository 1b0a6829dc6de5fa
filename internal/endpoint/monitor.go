package endpoint

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/vad"
)

// Monitor measures the energy of the audio written to it since the previous
// sample. Classification is delegated to a VAD session; with the energy
// engine the VAD score is the window's normalised RMS level.
//
// Monitor is safe for concurrent use: the capture reader writes while the
// sampling timer reads.
type Monitor struct {
	mu     sync.Mutex
	vad    vad.SessionHandle
	window []byte
	warned bool
}

// NewMonitor returns a Monitor classifying with h. The Monitor takes
// ownership of h and closes it in Close.
func NewMonitor(h vad.SessionHandle) *Monitor {
	return &Monitor{vad: h}
}

// Write appends PCM to the current window.
func (m *Monitor) Write(pcm []byte) {
	m.mu.Lock()
	m.window = append(m.window, pcm...)
	m.mu.Unlock()
}

// Sample classifies and clears the current window. An empty window is
// silence.
func (m *Monitor) Sample(now time.Time) Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.window
	m.window = m.window[:0]
	s := Sample{At: now, Level: audio.Level(window)}
	if len(window) == 0 {
		return s
	}
	ev, err := m.vad.ProcessFrame(window)
	if err != nil {
		if !m.warned {
			m.warned = true
			slog.Warn("endpoint: vad failed, treating window as silence", "err", err)
		}
		return s
	}
	s.Sound = ev.IsSpeech()
	return s
}

// Reset discards the pending window and the VAD state. Called at the start
// of each turn.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = m.window[:0]
	m.vad.Reset()
}

// Close releases the VAD session.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vad.Close()
}
