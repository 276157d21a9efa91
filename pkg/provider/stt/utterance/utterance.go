// Package utterance cuts a single spoken utterance out of a live PCM stream
// for batch recognisers.
//
// Leading silence is discarded, speech is buffered, and the utterance is
// committed once the speaker has been silent for the configured window, the
// buffer reaches its maximum duration, or the stream ends. Audio is 16-bit
// signed little-endian PCM throughout.
package utterance

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	bitsPerSample = 16

	// chunkMs is how much audio is analysed at a time.
	chunkMs = 20

	// DefaultRMSThreshold is the RMS energy (16-bit PCM units) below which a
	// chunk counts as silence.
	DefaultRMSThreshold = 300.0

	DefaultSilenceMs = 700
	DefaultMaxMs     = 15_000
)

// Segmenter holds the end-of-utterance rules. Zero fields select the defaults.
type Segmenter struct {
	// SilenceMs is how long the speaker must be quiet before the utterance is
	// committed.
	SilenceMs int

	// MaxMs caps the utterance length.
	MaxMs int

	// RMSThreshold separates silence from speech.
	RMSThreshold float64
}

func (s Segmenter) withDefaults() Segmenter {
	if s.SilenceMs <= 0 {
		s.SilenceMs = DefaultSilenceMs
	}
	if s.MaxMs <= 0 {
		s.MaxMs = DefaultMaxMs
	}
	if s.RMSThreshold <= 0 {
		s.RMSThreshold = DefaultRMSThreshold
	}
	return s
}

// Read consumes r until one utterance has been captured and returns its PCM.
// It returns nil PCM when the stream ended before any speech.
func (s Segmenter) Read(ctx context.Context, r io.Reader, sampleRate, channels int) ([]byte, error) {
	s = s.withDefaults()
	bytesPerMs := sampleRate * channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBytes := s.MaxMs * bytesPerMs
	chunk := make([]byte, chunkMs*bytesPerMs)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			c := chunk[:n]
			if RMS(c) < s.RMSThreshold {
				if hadSpeech {
					silenceMs += durationMs(c, sampleRate, channels)
					buffer = append(buffer, c...)
					if silenceMs >= s.SilenceMs {
						return buffer, nil
					}
				}
			} else {
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, c...)
				if len(buffer) >= maxBytes {
					return buffer, nil
				}
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if !hadSpeech {
				return nil, nil
			}
			return buffer, nil
		}
		if err != nil {
			return nil, fmt.Errorf("utterance: read audio: %w", err)
		}
	}
}

// EncodeWAV wraps PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// RMS returns the root-mean-square energy of a PCM buffer.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func durationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return len(chunk) * 1000 / (sampleRate * channels * (bitsPerSample / 8))
}
