package vad

// VADEvent is the classification of one window.
type VADEvent struct {
	Type VADEventType

	// Probability is the speech score in [0, 1].
	Probability float64
}

// IsSpeech reports whether the window was classified as speech.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType enumerates classification results.
type VADEventType int

const (
	// VADSpeechStart marks the first speech window of a run.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue marks a speech window inside a run.
	VADSpeechContinue

	// VADSpeechEnd marks the first silent window after a run.
	VADSpeechEnd

	// VADSilence marks a silent window outside a run.
	VADSilence
)

// String implements fmt.Stringer.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
