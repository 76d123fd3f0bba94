package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultStartupLatency is the lead given to the first buffer after the
	// device starts, masking device startup jitter.
	DefaultStartupLatency = 100 * time.Millisecond
	// DefaultSchedulingMargin is the minimum distance from "now" at which a
	// buffer may be scheduled.
	DefaultSchedulingMargin = 20 * time.Millisecond
)

// SchedulerConfig configures a Scheduler. Zero latencies take the defaults.
type SchedulerConfig struct {
	Format           Format
	StartupLatency   time.Duration
	SchedulingMargin time.Duration
	NewDevice        DeviceFactory
}

// Scheduler lays arriving PCM chunks end to end on a device timeline.
// Buffers are scheduled in arrival order; when chunks arrive faster than
// real time each one starts exactly where the previous ended.
type Scheduler struct {
	cfg SchedulerConfig

	mu        sync.Mutex
	device    Device
	nextStart time.Duration
	closed    bool
}

// NewScheduler validates cfg. No device is opened until EnsureStarted.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	if cfg.NewDevice == nil {
		return nil, errors.New("audio: scheduler needs a device factory")
	}
	if cfg.StartupLatency == 0 {
		cfg.StartupLatency = DefaultStartupLatency
	}
	if cfg.SchedulingMargin == 0 {
		cfg.SchedulingMargin = DefaultSchedulingMargin
	}
	return &Scheduler{cfg: cfg}, nil
}

// Format returns the PCM layout the scheduler expects.
func (s *Scheduler) Format() Format {
	return s.cfg.Format
}

// EnsureStarted opens the device on first use and resumes it if suspended.
// Safe to call repeatedly.
func (s *Scheduler) EnsureStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	if s.device == nil {
		dev, err := s.cfg.NewDevice(s.cfg.Format)
		if err != nil {
			return fmt.Errorf("open audio device: %w", err)
		}
		s.device = dev
		s.nextStart = dev.CurrentTime() + s.cfg.StartupLatency
	}
	if s.device.Suspended() {
		if err := s.device.Resume(); err != nil {
			return fmt.Errorf("resume audio device: %w", err)
		}
	}
	return nil
}

// Enqueue schedules one PCM chunk and returns the buffer it became. An empty
// chunk schedules nothing and returns a nil buffer.
func (s *Scheduler) Enqueue(pcm []byte) (*Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}
	if s.device == nil {
		return nil, ErrNotStarted
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	planar, err := Deinterleave(pcm, s.cfg.Format.Channels)
	if err != nil {
		return nil, err
	}
	frames := len(planar[0])

	start := max(s.device.CurrentTime()+s.cfg.SchedulingMargin, s.nextStart)
	buf := &Buffer{
		Frames:   frames,
		Channels: planar,
		Start:    start,
		Duration: s.cfg.Format.Duration(int64(frames)),
	}
	if err := s.device.Schedule(buf); err != nil {
		return nil, fmt.Errorf("schedule buffer: %w", err)
	}
	s.nextStart = start + buf.Duration
	return buf, nil
}

// NextStart is where the next chunk will be placed if it arrives in time.
// Zero after Reset.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Reset closes the device, discarding everything scheduled on it, and zeroes
// the timeline. The next EnsureStarted applies the startup latency afresh.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *Scheduler) resetLocked() error {
	dev := s.device
	s.device = nil
	s.nextStart = 0
	if dev == nil {
		return nil
	}
	return dev.Close()
}

// Close resets the scheduler for good. Later calls fail with
// ErrSchedulerClosed.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resetLocked()
}
