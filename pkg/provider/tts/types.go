package tts

// Voice selects the synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier
	// (e.g. "en-US-AriaNeural" for Edge, a voice_id for ElevenLabs).
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which backend the voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 or 0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific attributes (gender, accent, ...).
	Metadata map[string]string
}
