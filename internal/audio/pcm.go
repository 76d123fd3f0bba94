package audio

import (
	"encoding/binary"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// Deinterleave converts 16-bit LE interleaved PCM into per-channel float
// samples in [-1, 1).
func Deinterleave(pcm []byte, channels int) ([][]float32, error) {
	frameBytes := channels * 2
	if channels <= 0 || len(pcm)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes, %d channels", ErrMisalignedChunk, len(pcm), channels)
	}
	frames := len(pcm) / frameBytes
	planar := make([][]float32, channels)
	for c := range planar {
		planar[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off:]))
			planar[c][i] = float32(s) / 32768
		}
	}
	return planar, nil
}

// FloatToSample scales a float sample back to int16, clipping to range.
func FloatToSample(v float32) int16 {
	s := v * 32768
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// CheckMIME rejects a chunk whose mime type declares a rate or channel count
// other than f. Mime types without those parameters are accepted.
func (f Format) CheckMIME(mimeType string) error {
	if strings.TrimSpace(mimeType) == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil
	}
	if v, ok := params["rate"]; ok {
		if rate, err := strconv.Atoi(v); err == nil && rate != f.SampleRate {
			return fmt.Errorf("%w: rate %d, want %d", ErrFormatMismatch, rate, f.SampleRate)
		}
	}
	if v, ok := params["channels"]; ok {
		if ch, err := strconv.Atoi(v); err == nil && ch != f.Channels {
			return fmt.Errorf("%w: %d channels, want %d", ErrFormatMismatch, ch, f.Channels)
		}
	}
	return nil
}
