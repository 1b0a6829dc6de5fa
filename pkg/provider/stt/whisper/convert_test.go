package whisper

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/intervox/pkg/audio"
)

func pcm16(values ...int16) []byte {
	b := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func TestPcmToFloat32(t *testing.T) {
	tests := []struct {
		in   int16
		want float32
	}{
		{32767, 32767.0 / 32768.0},
		{-32768, -1},
		{0, 0},
		{16384, 0.5},
	}
	for _, tt := range tests {
		out := pcmToFloat32(pcm16(tt.in))
		if len(out) != 1 || math.Abs(float64(out[0]-tt.want)) > 1e-6 {
			t.Errorf("pcmToFloat32(%d) = %v, want [%v]", tt.in, out, tt.want)
		}
	}
	if out := pcmToFloat32([]byte{1, 2, 3}); len(out) != 1 {
		t.Errorf("odd input: len = %d, want 1", len(out))
	}
}

func TestSegmentSamples_NormalisesTo16kMono(t *testing.T) {
	stereo48k := make([]int16, 0, 960)
	for range 480 {
		stereo48k = append(stereo48k, 8192, 8192)
	}
	seg := audio.Segment{PCM: pcm16(stereo48k...), Format: audio.Format{SampleRate: 48000, Channels: 2}}

	out := segmentSamples(seg)
	if len(out) != 160 {
		t.Fatalf("len = %d, want 160", len(out))
	}
	for i, v := range out {
		if math.Abs(float64(v-0.25)) > 1e-3 {
			t.Fatalf("sample %d = %v, want 0.25", i, v)
		}
	}
}

func TestSegmentSamples_DownmixesSurround(t *testing.T) {
	// Three channels at 16 kHz: the average of each frame survives.
	seg := audio.Segment{
		PCM:    pcm16(16384, -16384, 16384, 16384, 0, 0),
		Format: audio.Format{SampleRate: 16000, Channels: 3},
	}
	out := segmentSamples(seg)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	for i, want := range []float32{16384.0 / 3 / 32768, 16384.0 / 3 / 32768} {
		if math.Abs(float64(out[i]-want)) > 1e-3 {
			t.Errorf("frame %d = %v, want %v", i, out[i], want)
		}
	}
}

func TestSegmentSamples_SpeechFormatPassthrough(t *testing.T) {
	seg := audio.Segment{PCM: pcm16(0, 16384, -16384), Format: audio.SpeechFormat}
	out := segmentSamples(seg)
	if len(out) != 3 || out[1] != 0.5 || out[2] != -0.5 {
		t.Errorf("samples = %v, want [0 0.5 -0.5]", out)
	}
}
