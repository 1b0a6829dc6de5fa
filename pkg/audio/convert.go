package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Format describes the sample rate and channel count of a 16-bit PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is what captured segments are normalised to before
// transcription: 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond is the PCM byte rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns the playback length of n bytes of PCM in format f.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// ConvertPCM converts 16-bit little-endian PCM between formats, resampling
// first and remixing channels second. Identical formats return pcm itself.
// Remixing covers N to mono (average) and mono to N (copy); any other
// channel change leaves the layout alone.
func ConvertPCM(pcm []byte, from, to Format) []byte {
	if from == to {
		return pcm
	}
	if from.SampleRate != to.SampleRate {
		pcm = resample(pcm, from.Channels, from.SampleRate, to.SampleRate)
	}
	if from.Channels != to.Channels {
		pcm = remix(pcm, from.Channels, to.Channels)
	}
	return pcm
}

// ResampleMono16 resamples mono PCM by linear interpolation.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 1, srcRate, dstRate)
}

// ResampleStereo16 resamples interleaved stereo PCM by linear
// interpolation, each channel independently.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 2, srcRate, dstRate)
}

// MonoToStereo copies every mono sample to both channels. A trailing odd
// byte is ignored.
func MonoToStereo(pcm []byte) []byte { return remix(pcm, 1, 2) }

// StereoToMono averages the two channels of every frame.
func StereoToMono(pcm []byte) []byte { return remix(pcm, 2, 1) }

func sampleAt(pcm []byte, i int) int32 {
	return int32(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
}

func putSample(out []byte, i int, v int32) {
	v = max(-32768, min(32767, v))
	binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
}

func resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if channels <= 0 || srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*2)
	step := float64(srcRate) / float64(dstRate)
	for f := range dstFrames {
		pos := float64(f) * step
		i := int(pos)
		frac := pos - float64(i)
		next := min(i+1, srcFrames-1)
		for c := range channels {
			a := float64(sampleAt(pcm, i*channels+c))
			b := float64(sampleAt(pcm, next*channels+c))
			putSample(out, f*channels+c, int32(a+(b-a)*frac))
		}
	}
	return out
}

func remix(pcm []byte, from, to int) []byte {
	if from <= 0 || to <= 0 || from == to {
		return pcm
	}
	frames := len(pcm) / (2 * from)
	switch {
	case to == 1:
		out := make([]byte, frames*2)
		for f := range frames {
			var sum int32
			for c := range from {
				sum += sampleAt(pcm, f*from+c)
			}
			putSample(out, f, sum/int32(from))
		}
		return out
	case from == 1:
		out := make([]byte, frames*to*2)
		for f := range frames {
			s := sampleAt(pcm, f)
			for c := range to {
				putSample(out, f*to+c, s)
			}
		}
		return out
	}
	return pcm
}

// FormatConverter normalises a stream of frames to Target. Frames with an
// odd byte count are dropped (empty Data in the target format). The first
// mismatch and the first corrupt frame are each logged once. Not safe for
// concurrent use.
type FormatConverter struct {
	Target Format

	mismatch sync.Once
	corrupt  sync.Once
}

// Convert returns frame in the target format. Matching frames are returned
// as is.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	out := AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	if len(frame.Data)%2 != 0 {
		c.corrupt.Do(func() {
			slog.Warn("audio: dropping frame with odd byte count", "bytes", len(frame.Data), "format", frame.Format())
		})
		return out
	}
	src := frame.Format()
	if src == c.Target {
		return frame
	}
	c.mismatch.Do(func() {
		slog.Info("audio: converting input", "from", src, "to", c.Target)
	})
	out.Data = ConvertPCM(frame.Data, src, c.Target)
	return out
}

// ConvertStream converts every frame from in to target on a goroutine and
// drops frames that end up empty. The returned channel, buffered like in,
// closes after in does.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		c := &FormatConverter{Target: target}
		for frame := range in {
			if f := c.Convert(frame); len(f.Data) > 0 {
				out <- f
			}
		}
	}()
	return out
}
