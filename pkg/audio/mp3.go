package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 returns a reader of the decoded 16-bit little-endian PCM and its
// format. go-mp3 always produces stereo output at the stream's sample rate.
func DecodeMP3(r io.Reader) (io.Reader, Format, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode mp3: %w", err)
	}
	return d, Format{SampleRate: d.SampleRate(), Channels: 2}, nil
}

// Sniff guesses the container of an encoded audio payload from its first
// bytes: "wav", "mp3" or "" for raw PCM or unknown data.
func Sniff(head []byte) string {
	switch {
	case len(head) >= 12 && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WAVE":
		return "wav"
	case len(head) >= 3 && string(head[0:3]) == "ID3":
		return "mp3"
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG frame sync.
		return "mp3"
	default:
		return ""
	}
}
