package session

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satindergrewal/vibejockey/internal/audio"
	"github.com/satindergrewal/vibejockey/internal/lyria"
	"github.com/satindergrewal/vibejockey/internal/wire"
)

// --- fixtures ---

type stubConn struct {
	in      chan []byte
	closed  chan struct{}
	once    sync.Once
	written chan string
}

func newStubConn() *stubConn {
	return &stubConn{
		in:      make(chan []byte, 16),
		closed:  make(chan struct{}),
		written: make(chan string, 64),
	}
}

func (c *stubConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *stubConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.written <- string(data)
	return nil
}

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type stubDialer struct {
	mu    sync.Mutex
	conn  *stubConn
	dials int
}

func (d *stubDialer) Dial(context.Context, string) (lyria.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	return d.conn, nil
}

func (d *stubDialer) use(c *stubConn) {
	d.mu.Lock()
	d.conn = c
	d.mu.Unlock()
}

func (d *stubDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// testDevice has a fixed clock and records what is scheduled on it.
type testDevice struct {
	mu        sync.Mutex
	now       time.Duration
	suspended bool
	closed    bool
	buffers   []*audio.Buffer
}

func (d *testDevice) CurrentTime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *testDevice) Schedule(b *audio.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return audio.ErrDeviceClosed
	}
	d.buffers = append(d.buffers, b)
	return nil
}

func (d *testDevice) Suspended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suspended
}

func (d *testDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspended = false
	return nil
}

func (d *testDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *testDevice) scheduled() []*audio.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*audio.Buffer(nil), d.buffers...)
}

func (d *testDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// testOutput opens testDevices whose clock starts at now.
type testOutput struct {
	mu      sync.Mutex
	now     time.Duration
	devices []*testDevice
}

func (o *testOutput) open(audio.Format) (audio.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := &testDevice{now: o.now, suspended: true}
	o.devices = append(o.devices, d)
	return d, nil
}

func (o *testOutput) setNow(now time.Duration) {
	o.mu.Lock()
	o.now = now
	o.mu.Unlock()
}

func (o *testOutput) last() *testDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.devices) == 0 {
		return nil
	}
	return o.devices[len(o.devices)-1]
}

func (o *testOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.devices)
}

type harness struct {
	sess   *Session
	conn   *stubConn
	dialer *stubDialer
	output *testOutput

	mu       sync.Mutex
	statuses []Status
}

func (h *harness) trace() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.statuses...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// start runs a session built from opts over a stub socket and test output.
func start(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		conn:   newStubConn(),
		output: &testOutput{},
	}
	h.dialer = &stubDialer{conn: h.conn}
	opts.Dialer = h.dialer
	opts.NewDevice = h.output.open
	opts.Logger = quietLogger()
	opts.OnStatus = func(s Status) {
		h.mu.Lock()
		h.statuses = append(h.statuses, s)
		h.mu.Unlock()
	}
	h.sess = New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func manualOptions() Options {
	opts := DefaultOptions()
	opts.AutoApply = false
	opts.ResetOnConfigUpdate = false
	return opts
}

func nextWrite(t *testing.T, c *stubConn) string {
	t.Helper()
	select {
	case w := <-c.written:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for write")
	}
	return ""
}

func noWrite(t *testing.T, c *stubConn, wait time.Duration) {
	t.Helper()
	select {
	case w := <-c.written:
		t.Fatalf("unexpected write %s", w)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	waitFor(t, "status "+want.String(), func() bool {
		snap, err := s.State()
		return err == nil && snap.Status == want
	})
}

func hasLog(s *Session, msg string) bool {
	snap, err := s.State()
	if err != nil {
		return false
	}
	for _, e := range snap.Logs {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// connectReady connects with key "k" and model "m" and completes the handshake.
func (h *harness) connectReady(t *testing.T) {
	t.Helper()
	if err := h.sess.Connect("k", "m"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := nextWrite(t, h.conn); got != `{"setup":{"model":"m"}}` {
		t.Fatalf("setup frame = %s", got)
	}
	h.conn.in <- []byte(`{"setupComplete":{}}`)
	waitStatus(t, h.sess, Ready)
}

// redial points the dialer at a fresh socket for the next connect.
func (h *harness) redial() {
	h.conn = newStubConn()
	h.dialer.use(h.conn)
}

func checkTrace(t *testing.T, got, want []Status) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("status trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trace[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func chunkFrame(frames int) []byte {
	data := base64.StdEncoding.EncodeToString(make([]byte, frames*audio.DefaultFormat.FrameBytes()))
	return []byte(`{"serverContent":{"audioChunks":[{"data":"` + data + `","mimeType":"audio/l16;rate=48000;channels=2"}]}}`)
}

// --- lifecycle ---

func TestNewSessionStartsDisconnected(t *testing.T) {
	h := start(t, DefaultOptions())
	snap, err := h.sess.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.Status != Disconnected {
		t.Errorf("Status = %v, want disconnected", snap.Status)
	}
	if len(snap.Logs) != 1 || snap.Logs[0].Message != "Ready to connect to Lyria RealTime." {
		t.Errorf("Logs = %+v", snap.Logs)
	}
	if len(snap.Prompts) != 2 || snap.Prompts[0].ID != "prompt-1" {
		t.Errorf("Prompts = %+v, want the defaults", snap.Prompts)
	}
	if !snap.AutoApply || !snap.ResetOnConfigUpdate {
		t.Error("default preferences should be on")
	}
}

func TestPlayStopSchedulesFromFreshTimeline(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)

	h.output.setNow(5 * time.Second)
	if err := h.sess.SendPlayback(wire.Play); err != nil {
		t.Fatalf("PLAY: %v", err)
	}
	if got := nextWrite(t, h.conn); got != `{"playbackControl":"PLAY"}` {
		t.Errorf("PLAY frame = %s", got)
	}
	waitStatus(t, h.sess, Playing)
	first := h.output.last()
	if first == nil || first.Suspended() {
		t.Fatal("PLAY did not open and resume an audio device")
	}

	h.conn.in <- chunkFrame(10)
	waitFor(t, "first chunk", func() bool { return len(first.scheduled()) == 1 })
	b := first.scheduled()[0]
	if b.Frames != 10 || len(b.Channels) != 2 {
		t.Errorf("buffer = %d frames x %d channels, want 10 x 2", b.Frames, len(b.Channels))
	}
	for ch, samples := range b.Channels {
		for i, v := range samples {
			if v != 0 {
				t.Errorf("channel %d sample %d = %v, want 0", ch, i, v)
			}
		}
	}
	if want := 5*time.Second + audio.DefaultStartupLatency; b.Start != want {
		t.Errorf("Start = %v, want %v", b.Start, want)
	}

	if err := h.sess.SendPlayback(wire.Stop); err != nil {
		t.Fatalf("STOP: %v", err)
	}
	nextWrite(t, h.conn)
	waitStatus(t, h.sess, Ready)
	if !first.isClosed() {
		t.Error("STOP should close the audio device")
	}

	h.output.setNow(9 * time.Second)
	if err := h.sess.SendPlayback(wire.Play); err != nil {
		t.Fatalf("second PLAY: %v", err)
	}
	nextWrite(t, h.conn)
	waitFor(t, "second device", func() bool { return h.output.count() == 2 })
	second := h.output.last()
	h.conn.in <- chunkFrame(10)
	waitFor(t, "second chunk", func() bool { return len(second.scheduled()) == 1 })
	if want := 9*time.Second + audio.DefaultStartupLatency; second.scheduled()[0].Start != want {
		t.Errorf("Start after restart = %v, want %v", second.scheduled()[0].Start, want)
	}

	trace := h.trace()
	want := []Status{Connecting, Ready, Playing, Ready, Playing}
	if len(trace) != len(want) {
		t.Fatalf("status trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %v, want %v", i, trace[i], want[i])
		}
	}
}

func TestChunksBeforePlayAreDropped(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)
	h.conn.in <- chunkFrame(10)
	h.conn.in <- []byte(`{"warning":"slow down"}`)
	waitFor(t, "warning", func() bool { return hasLog(h.sess, "Warning: slow down") })
	if h.output.count() != 0 {
		t.Error("a chunk before PLAY opened an audio device")
	}
}

func TestChunkWithOtherFormatIsDropped(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)
	h.sess.SendPlayback(wire.Play)
	nextWrite(t, h.conn)

	data := base64.StdEncoding.EncodeToString(make([]byte, 40))
	h.conn.in <- []byte(`{"serverContent":{"audioChunks":[{"data":"` + data + `","mimeType":"audio/l16;rate=24000;channels=2"}]}}`)
	h.conn.in <- chunkFrame(4)
	dev := h.output.last()
	waitFor(t, "matching chunk", func() bool { return len(dev.scheduled()) == 1 })
	if got := dev.scheduled()[0].Frames; got != 4 {
		t.Errorf("scheduled %d frames, want only the 4-frame chunk", got)
	}
}

func TestMetadataAndFilteredPrompt(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)
	h.conn.in <- []byte(`{"filteredPrompt":{"text":"x"}}`)
	h.conn.in <- []byte(`{"serverContent":{"audioChunks":[{"data":"AAAA","sourceMetadata":{"seq":7}}]}}`)
	waitFor(t, "metadata", func() bool {
		snap, _ := h.sess.State()
		return string(snap.LastMetadata) == `{"seq":7}`
	})
	if !hasLog(h.sess, "Filtered prompt: Unknown reason") {
		t.Error("missing filtered prompt entry")
	}
}

func TestTransportCloseDisconnects(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)
	h.conn.Close()
	waitStatus(t, h.sess, Disconnected)
	if !hasLog(h.sess, "Disconnected from Lyria RealTime.") {
		t.Error("missing disconnect entry")
	}
	if err := h.sess.SendPrompts(); !errors.Is(err, lyria.ErrNotReady) {
		t.Errorf("SendPrompts after close = %v, want ErrNotReady", err)
	}
}

func TestDisconnectFromAnyState(t *testing.T) {
	h := start(t, manualOptions())
	if err := h.sess.Disconnect(); err != nil {
		t.Fatalf("Disconnect while disconnected: %v", err)
	}
	h.connectReady(t)
	if err := h.sess.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	waitStatus(t, h.sess, Disconnected)
	noWrite(t, h.conn, 50*time.Millisecond)
	if !hasLog(h.sess, "Session closed.") {
		t.Error("missing session closed entry")
	}
}

func TestReconnectUsesFreshInstances(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)
	h.sess.SendPlayback(wire.Play)
	nextWrite(t, h.conn)
	waitStatus(t, h.sess, Playing)
	first := h.output.last()

	if err := h.sess.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	waitStatus(t, h.sess, Disconnected)
	if !first.isClosed() {
		t.Error("Disconnect should close the audio device")
	}
	oldConn := h.conn

	h.redial()
	h.connectReady(t)
	if h.dialer.count() != 2 {
		t.Errorf("dials = %d, want 2", h.dialer.count())
	}

	h.output.setNow(3 * time.Second)
	h.sess.SendPlayback(wire.Play)
	nextWrite(t, h.conn)
	waitStatus(t, h.sess, Playing)
	if h.output.count() != 2 {
		t.Fatalf("devices = %d, want a second one after reconnect", h.output.count())
	}
	second := h.output.last()
	h.conn.in <- chunkFrame(10)
	waitFor(t, "chunk on new device", func() bool { return len(second.scheduled()) == 1 })
	if want := 3*time.Second + audio.DefaultStartupLatency; second.scheduled()[0].Start != want {
		t.Errorf("Start = %v, want %v from a fresh timeline", second.scheduled()[0].Start, want)
	}
	if len(first.scheduled()) != 0 {
		t.Error("old device received audio after reconnect")
	}
	noWrite(t, oldConn, 20*time.Millisecond)

	checkTrace(t, h.trace(), []Status{Connecting, Ready, Playing, Disconnected, Connecting, Ready, Playing})
}

func TestReconnectAfterCloseWhileConnecting(t *testing.T) {
	h := start(t, manualOptions())
	if err := h.sess.Connect("k", "m"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	nextWrite(t, h.conn)
	h.conn.Close()
	waitStatus(t, h.sess, Disconnected)

	h.redial()
	h.connectReady(t)
	if h.dialer.count() != 2 {
		t.Errorf("dials = %d, want 2", h.dialer.count())
	}
	checkTrace(t, h.trace(), []Status{Connecting, Disconnected, Connecting, Ready})
}

// --- rejected actions ---

func TestConnectWithBlankKey(t *testing.T) {
	h := start(t, DefaultOptions())
	if err := h.sess.Connect("   ", "m"); !errors.Is(err, ErrEmptyCredential) {
		t.Fatalf("Connect = %v, want ErrEmptyCredential", err)
	}
	if h.dialer.count() != 0 {
		t.Error("blank key should not dial")
	}
	snap, _ := h.sess.State()
	if snap.Status != Disconnected {
		t.Errorf("Status = %v, want disconnected", snap.Status)
	}
	if snap.Logs[0].Message != "Add your API key before connecting." {
		t.Errorf("latest entry = %q", snap.Logs[0].Message)
	}
	if len(h.trace()) != 0 {
		t.Errorf("status changed: %v", h.trace())
	}
}

func TestConnectTwice(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)
	if err := h.sess.Connect("k", "m"); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
	if h.dialer.count() != 1 {
		t.Errorf("dials = %d, want 1", h.dialer.count())
	}
}

func TestSendsBeforeReadyWriteNothing(t *testing.T) {
	h := start(t, manualOptions())
	if err := h.sess.SendPlayback(wire.Play); !errors.Is(err, lyria.ErrNotReady) {
		t.Errorf("PLAY while disconnected = %v, want ErrNotReady", err)
	}

	if err := h.sess.Connect("k", "m"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	nextWrite(t, h.conn)
	if err := h.sess.SendPrompts(); !errors.Is(err, lyria.ErrNotReady) {
		t.Errorf("SendPrompts while connecting = %v, want ErrNotReady", err)
	}
	if err := h.sess.UpdateConfig(UpdateOptions{}); !errors.Is(err, lyria.ErrNotReady) {
		t.Errorf("UpdateConfig while connecting = %v, want ErrNotReady", err)
	}
	noWrite(t, h.conn, 50*time.Millisecond)
	if !hasLog(h.sess, "Prompts not sent: session is not ready") {
		t.Error("missing not-ready entry")
	}
}

func TestDuplicatePromptIDs(t *testing.T) {
	h := start(t, manualOptions())
	err := h.sess.SetPrompts([]wire.WeightedPrompt{
		{ID: "a", Text: "one", Weight: 1},
		{ID: "a", Text: "two", Weight: 1},
	})
	if !errors.Is(err, ErrDuplicatePromptID) {
		t.Fatalf("SetPrompts = %v, want ErrDuplicatePromptID", err)
	}
	snap, _ := h.sess.State()
	if snap.Prompts[0].ID != "prompt-1" {
		t.Error("rejected prompt set replaced the current one")
	}

	if err := h.sess.SetPrompts([]wire.WeightedPrompt{{Text: "new", Weight: 1}}); err != nil {
		t.Fatalf("SetPrompts: %v", err)
	}
	snap, _ = h.sess.State()
	if snap.Prompts[0].ID == "" {
		t.Error("prompt without id was not given one")
	}
}

// --- config and auto-apply ---

func TestUpdateConfigWithReset(t *testing.T) {
	h := start(t, manualOptions())
	h.connectReady(t)

	if err := h.sess.UpdateConfig(UpdateOptions{ResetContext: wire.Ptr(true)}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := nextWrite(t, h.conn); !strings.HasPrefix(got, `{"musicGenerationConfig":{`) {
		t.Errorf("first frame = %s, want the config", got)
	}
	if got := nextWrite(t, h.conn); got != `{"playbackControl":"RESET_CONTEXT"}` {
		t.Errorf("second frame = %s, want RESET_CONTEXT", got)
	}
	noWrite(t, h.conn, 50*time.Millisecond)

	if err := h.sess.UpdateConfig(UpdateOptions{}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	nextWrite(t, h.conn)
	noWrite(t, h.conn, 50*time.Millisecond)
}

func TestAutoApplyDebouncesEdits(t *testing.T) {
	opts := DefaultOptions()
	opts.ResetOnConfigUpdate = false
	h := start(t, opts)
	h.connectReady(t)

	// entering Ready applies the current prompts and config once
	initial := map[string]bool{}
	for i := 0; i < 2; i++ {
		initial[strings.SplitN(nextWrite(t, h.conn), ":", 2)[0]] = true
	}
	if !initial[`{"clientContent"`] || !initial[`{"musicGenerationConfig"`] {
		t.Fatalf("initial auto-apply frames = %v", initial)
	}

	for _, text := range []string{"a", "ab", "abc"} {
		h.sess.SetPrompts([]wire.WeightedPrompt{{ID: "p", Text: text, Weight: 1}})
		time.Sleep(30 * time.Millisecond)
	}
	got := nextWrite(t, h.conn)
	if want := `{"clientContent":{"weightedPrompts":[{"text":"abc","weight":1}]}}`; got != want {
		t.Errorf("prompt frame = %s, want %s", got, want)
	}
	noWrite(t, h.conn, DefaultDebounce+100*time.Millisecond)
}

func TestAutoApplyOffCancelsPending(t *testing.T) {
	opts := DefaultOptions()
	opts.Debounce = 50 * time.Millisecond
	h := start(t, opts)
	if err := h.sess.SetAutoApply(false); err != nil {
		t.Fatalf("SetAutoApply: %v", err)
	}
	h.connectReady(t)
	h.sess.SetConfig(DefaultConfig())
	noWrite(t, h.conn, 150*time.Millisecond)

	h.sess.SetResetOnConfigUpdate(false)
	h.sess.SetAutoApply(true)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[strings.SplitN(nextWrite(t, h.conn), ":", 2)[0]] = true
	}
	if len(seen) != 2 {
		t.Errorf("frames after re-enabling = %v, want prompts and config", seen)
	}
}

// --- housekeeping ---

func TestClearLogs(t *testing.T) {
	h := start(t, DefaultOptions())
	h.sess.Connect("", "")
	if err := h.sess.ClearLogs(); err != nil {
		t.Fatalf("ClearLogs: %v", err)
	}
	snap, _ := h.sess.State()
	if len(snap.Logs) != 1 || snap.Logs[0].Message != "Log cleared." {
		t.Errorf("Logs = %+v", snap.Logs)
	}
}

func TestCallsAfterRunReturn(t *testing.T) {
	s := New(Options{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if _, err := s.State(); !errors.Is(err, ErrStopped) {
		t.Errorf("State after Run = %v, want ErrStopped", err)
	}
}
