package whisper

import (
	"encoding/binary"

	"github.com/MrWong99/intervox/pkg/audio"
)

// segmentSamples converts seg to the 16 kHz mono float32 samples whisper
// models consume.
func segmentSamples(seg audio.Segment) []float32 {
	return pcmToFloat32(audio.ConvertPCM(seg.PCM, seg.Format, audio.SpeechFormat))
}

// pcmToFloat32 scales signed 16-bit little-endian samples into [-1, 1). An
// odd trailing byte is dropped.
func pcmToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return out
}
