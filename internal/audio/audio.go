package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
)

var (
	ErrNotStarted      = errors.New("audio: output not started")
	ErrSchedulerClosed = errors.New("audio: scheduler closed")
	ErrDeviceClosed    = errors.New("audio: device closed")
	ErrMisalignedChunk = errors.New("audio: chunk is not a whole number of frames")
	ErrFormatMismatch  = errors.New("audio: chunk format does not match session format")
)

// Format is the fixed PCM layout of a session: 16-bit signed little-endian,
// interleaved by channel. It is configured out of band, never sniffed.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 48 kHz stereo.
var DefaultFormat = Format{SampleRate: SampleRate, Channels: Channels}

// Validate rejects formats no device can render.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: invalid channel count %d", f.Channels)
	}
	return nil
}

// FrameBytes is the byte size of one interleaved sample frame.
func (f Format) FrameBytes() int {
	return f.Channels * BitDepth / 8
}

// TickFrames is the number of sample frames rendered per FrameDuration tick.
func (f Format) TickFrames() int {
	return int(int64(f.SampleRate) * int64(FrameDuration) / int64(time.Second))
}

// Duration converts a frame count to playback time.
func (f Format) Duration(frames int64) time.Duration {
	rate := int64(f.SampleRate)
	sec, rem := frames/rate, frames%rate
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/rate)
}

// FrameAt converts a device clock position to the nearest frame index.
func (f Format) FrameAt(d time.Duration) int64 {
	rate := int64(f.SampleRate)
	sec, rem := int64(d/time.Second), int64(d%time.Second)
	return sec*rate + (rem*rate+int64(time.Second)/2)/int64(time.Second)
}

// Buffer is one scheduled segment of planar float audio.
type Buffer struct {
	Frames   int
	Channels [][]float32
	Start    time.Duration
	Duration time.Duration
}

// Device is an audio output with its own clock.
type Device interface {
	// CurrentTime is the device clock: how much audio it has played.
	CurrentTime() time.Duration
	// Schedule queues b to play at b.Start on the device clock.
	Schedule(b *Buffer) error
	// Suspended reports whether the clock is stopped.
	Suspended() bool
	Resume() error
	// Close stops output and drops every scheduled buffer.
	Close() error
}

// DeviceFactory opens a fresh device for the given format.
type DeviceFactory func(Format) (Device, error)

// Sink receives rendered interleaved int16 frames.
type Sink interface {
	WriteFrame(frame []int16)
}
