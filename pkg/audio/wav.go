package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	bitsPerSample  = 16
	wavHeaderBytes = 44
)

// ErrNotWAV is returned by [DecodeWAV] when the input lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container suitable for a multipart upload.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderBytes+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                   // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                    // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))     // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))   // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV extracts the PCM payload and format from a 16-bit PCM WAV file.
// Unknown chunks between "fmt " and "data" are skipped.
func DecodeWAV(b []byte) ([]byte, Format, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}
	var (
		f      Format
		gotFmt bool
	)
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(b) {
			// Streams written without a final size often leave the data
			// chunk length at 0 or past the end; take what is there.
			if id == "data" && gotFmt {
				return b[body:], f, nil
			}
			return nil, Format{}, fmt.Errorf("audio: wav chunk %q truncated", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("audio: wav fmt chunk too short (%d bytes)", size)
			}
			if tag := binary.LittleEndian.Uint16(b[body : body+2]); tag != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav encoding %d", tag)
			}
			if bits := binary.LittleEndian.Uint16(b[body+14 : body+16]); bits != bitsPerSample {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav bit depth %d", bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, Format{}, errors.New("audio: wav data chunk before fmt chunk")
			}
			return b[body : body+size], f, nil
		}
		pos = body + size + size%2
	}
	return nil, Format{}, errors.New("audio: wav has no data chunk")
}
