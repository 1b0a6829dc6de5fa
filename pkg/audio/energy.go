package audio

import (
	"encoding/binary"
	"math"
)

// maxSample is the largest magnitude of a 16-bit sample, used to normalise
// energy levels into [0, 1].
const maxSample = 32768.0

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer, in sample units (0–32 767). Returns 0 for buffers shorter than
// one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Level returns the RMS energy of pcm normalised to [0, 1].
func Level(pcm []byte) float64 {
	return math.Min(RMS(pcm)/maxSample, 1)
}
