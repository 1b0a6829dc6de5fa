package audio

import "time"

// AudioFrame is one block of 16-bit little-endian PCM delivered by a
// [Microphone]. Frames are the unit the capture pipeline buffers and the
// energy monitor measures.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (e.g., 48000 from a laptop microphone, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to device start.
	Timestamp time.Duration
}

// Format returns the frame's sample format.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Segment is a finalised, bounded recording of one user turn. Ownership moves
// from the capture pipeline to the transcription client when the turn ends;
// the receiver must not expect the producer to keep a copy.
type Segment struct {
	// PCM holds the raw 16-bit little-endian samples.
	PCM []byte

	// Format describes PCM.
	Format Format

	// StartedAt is when the turn was armed.
	StartedAt time.Time

	// HadSpeech reports whether the energy monitor classified at least one
	// sample of the turn as sound.
	HadSpeech bool
}

// Duration returns the length of the recorded audio.
func (s Segment) Duration() time.Duration {
	return s.Format.Duration(len(s.PCM))
}

// Empty reports whether the segment carries no audio.
func (s Segment) Empty() bool {
	return len(s.PCM) == 0
}

// WAV returns the segment wrapped in a RIFF/WAV container.
func (s Segment) WAV() []byte {
	return EncodeWAV(s.PCM, s.Format)
}
