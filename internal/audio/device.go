package audio

import (
	"sync"
	"time"
)

// StreamDevice is a software output device. A ticker renders one 20ms frame
// per tick by mixing every scheduled buffer that overlaps it, and hands the
// frame to a Sink. Its clock is the amount of audio rendered so far, so it
// only advances while running.
type StreamDevice struct {
	format     Format
	sink       Sink
	tickFrames int

	mu      sync.Mutex
	cursor  int64 // frames rendered since creation
	queue   []*Buffer
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewStreamDevice creates a suspended device rendering into sink.
func NewStreamDevice(format Format, sink Sink) *StreamDevice {
	return &StreamDevice{
		format:     format,
		sink:       sink,
		tickFrames: format.TickFrames(),
	}
}

// StreamDeviceFactory returns a DeviceFactory whose devices all render into sink.
func StreamDeviceFactory(sink Sink) DeviceFactory {
	return func(f Format) (Device, error) {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return NewStreamDevice(f, sink), nil
	}
}

func (d *StreamDevice) CurrentTime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format.Duration(d.cursor)
}

func (d *StreamDevice) Suspended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.running
}

// Resume starts the render loop.
func (d *StreamDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if d.running {
		return nil
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
	return nil
}

func (d *StreamDevice) Schedule(b *Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.queue = append(d.queue, b)
	return nil
}

// Close stops rendering and drops every scheduled buffer. It waits for the
// render loop to exit, which takes at most one tick.
func (d *StreamDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.running = false
	d.queue = nil
	stop, done := d.stop, d.done
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (d *StreamDevice) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		frame := d.render()
		if d.sink != nil {
			d.sink.WriteFrame(frame)
		}
	}
}

// render mixes the next tick of audio and advances the clock. Buffers whose
// window has fully passed are released.
func (d *StreamDevice) render() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := d.format.Channels
	from := d.cursor
	to := from + int64(d.tickFrames)
	mix := make([]float32, d.tickFrames*ch)

	kept := d.queue[:0]
	for _, b := range d.queue {
		start := d.format.FrameAt(b.Start)
		end := start + int64(b.Frames)
		if lo, hi := max(start, from), min(end, to); lo < hi {
			for f := lo; f < hi; f++ {
				src := int(f - start)
				dst := int(f-from) * ch
				for c := 0; c < ch; c++ {
					mix[dst+c] += b.Channels[c][src]
				}
			}
		}
		if end > to {
			kept = append(kept, b)
		}
	}
	for i := len(kept); i < len(d.queue); i++ {
		d.queue[i] = nil
	}
	d.queue = kept
	d.cursor = to

	frame := make([]int16, len(mix))
	for i, v := range mix {
		frame[i] = FloatToSample(v)
	}
	return frame
}
