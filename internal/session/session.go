// Package session coordinates one live music session: user actions, the
// protocol client, the audio scheduler and debounced auto-apply of edits.
// Every state change happens on the goroutine running Session.Run.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/satindergrewal/vibejockey/internal/audio"
	"github.com/satindergrewal/vibejockey/internal/lyria"
	"github.com/satindergrewal/vibejockey/internal/wire"
)

var (
	ErrEmptyCredential   = errors.New("session: api key is empty")
	ErrAlreadyConnected  = errors.New("session: already connected")
	ErrDuplicatePromptID = errors.New("session: duplicate prompt id")
	ErrStopped           = errors.New("session: not running")
)

// Status is the session's position in the connect/play lifecycle.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Ready
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canSend reports whether the protocol is past its handshake.
func (s Status) canSend() bool {
	return s == Ready || s == Playing || s == Paused
}

// Options configures a Session. Zero values take defaults.
type Options struct {
	Endpoint         string
	Format           audio.Format
	StartupLatency   time.Duration
	SchedulingMargin time.Duration
	Debounce         time.Duration
	LogCapacity      int

	AutoApply           bool
	ResetOnConfigUpdate bool
	Prompts             []wire.WeightedPrompt
	Config              wire.GenerationConfig

	// NewDevice opens the audio output for each connection.
	NewDevice audio.DeviceFactory
	// Dialer opens the socket; nil uses gorilla/websocket.
	Dialer lyria.Dialer
	// OnStatus, if set, is called on the session goroutine after every
	// status transition.
	OnStatus func(Status)
	Logger   *slog.Logger
}

// DefaultPrompts is the prompt set a new session starts with.
func DefaultPrompts() []wire.WeightedPrompt {
	return []wire.WeightedPrompt{
		{ID: "prompt-1", Text: "minimal techno", Weight: 1.0},
		{ID: "prompt-2", Text: "warm synth bass", Weight: 0.6},
	}
}

// DefaultConfig is the generation config a new session starts with.
func DefaultConfig() wire.GenerationConfig {
	return wire.GenerationConfig{
		Temperature:         wire.Ptr(1.1),
		TopK:                wire.Ptr(40),
		Guidance:            wire.Ptr(4.0),
		BPM:                 wire.Ptr(120),
		Density:             wire.Ptr(0.5),
		Brightness:          wire.Ptr(0.55),
		Scale:               wire.ScaleUnspecified,
		MuteBass:            wire.Ptr(false),
		MuteDrums:           wire.Ptr(false),
		OnlyBassAndDrums:    wire.Ptr(false),
		MusicGenerationMode: wire.ModeQuality,
	}
}

// DefaultOptions returns the options of a fresh deck: default prompts and
// config, auto-apply and reset-on-config-change on.
func DefaultOptions() Options {
	return Options{
		Endpoint:            lyria.DefaultEndpoint,
		Format:              audio.DefaultFormat,
		StartupLatency:      audio.DefaultStartupLatency,
		SchedulingMargin:    audio.DefaultSchedulingMargin,
		Debounce:            DefaultDebounce,
		LogCapacity:         DefaultLogCapacity,
		AutoApply:           true,
		ResetOnConfigUpdate: true,
		Prompts:             DefaultPrompts(),
		Config:              DefaultConfig(),
	}
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	Status              Status                `json:"status"`
	Model               string                `json:"model"`
	Prompts             []wire.WeightedPrompt `json:"prompts"`
	Config              wire.GenerationConfig `json:"config"`
	Logs                []LogEntry            `json:"logs"`
	LastMetadata        json.RawMessage       `json:"last_metadata"`
	AutoApply           bool                  `json:"auto_apply"`
	ResetOnConfigUpdate bool                  `json:"reset_on_config_update"`
}

type request struct {
	fn    func()
	reply chan struct{}
}

// Session is the single owner of status, prompts, config, the activity log,
// the last chunk metadata, and the live client and scheduler. It is driven by
// Run; the exported methods hand work to that goroutine and wait for it.
type Session struct {
	opts     Options
	log      *slog.Logger
	requests chan request
	fires    chan fire
	done     chan struct{}

	// owned by the Run goroutine
	ctx                 context.Context
	status              Status
	model               string
	prompts             []wire.WeightedPrompt
	config              wire.GenerationConfig
	activity            *ActivityLog
	lastMetadata        json.RawMessage
	autoApply           bool
	resetOnConfigUpdate bool

	client       *lyria.Client
	clientEvents <-chan lyria.Event
	player       *audio.Scheduler

	promptDebounce *debouncer
	configDebounce *debouncer
}

// New builds a disconnected session. Call Run to start it.
func New(opts Options) *Session {
	if opts.Endpoint == "" {
		opts.Endpoint = lyria.DefaultEndpoint
	}
	if opts.Format == (audio.Format{}) {
		opts.Format = audio.DefaultFormat
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewDevice == nil {
		opts.NewDevice = audio.StreamDeviceFactory(nil)
	}

	s := &Session{
		opts:                opts,
		log:                 opts.Logger.With("component", "session"),
		requests:            make(chan request),
		fires:               make(chan fire),
		done:                make(chan struct{}),
		ctx:                 context.Background(),
		status:              Disconnected,
		model:               lyria.DefaultModel,
		prompts:             clonePrompts(opts.Prompts),
		config:              cloneConfig(opts.Config),
		activity:            NewActivityLog(opts.LogCapacity),
		autoApply:           opts.AutoApply,
		resetOnConfigUpdate: opts.ResetOnConfigUpdate,
	}
	s.promptDebounce = newDebouncer(applyPrompts, opts.Debounce, s.fires, s.done)
	s.configDebounce = newDebouncer(applyConfig, opts.Debounce, s.fires, s.done)
	s.note("Ready to connect to Lyria RealTime.")
	return s
}

// Run processes actions, client events and debounce fires until ctx is
// cancelled, then tears the connection down. Run must be called once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.ctx = ctx
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.requests:
			req.fn()
			close(req.reply)
		case ev := <-s.clientEvents:
			s.handleClientEvent(ev)
		case f := <-s.fires:
			s.handleFire(f)
		}
	}
}

// call runs fn on the session goroutine and waits for it.
func (s *Session) call(fn func()) error {
	req := request{fn: fn, reply: make(chan struct{})}
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrStopped
	}
	select {
	case <-req.reply:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// note appends a user-visible activity entry and mirrors it to the log.
func (s *Session) note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.activity.Add(msg)
	s.log.Info(msg, "status", s.status)
}

// setStatus moves to next and reports the transition. Callers add the
// matching activity entry.
func (s *Session) setStatus(next Status) {
	if next == s.status {
		return
	}
	s.log.Debug("status", "from", s.status, "to", next)
	s.status = next
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(next)
	}
	if !next.canSend() {
		s.promptDebounce.cancel()
		s.configDebounce.cancel()
	}
}

// teardown releases the live client and scheduler. Safe with none live.
func (s *Session) teardown() {
	s.promptDebounce.cancel()
	s.configDebounce.cancel()
	if s.client != nil {
		s.client.Disconnect()
		s.client = nil
	}
	s.clientEvents = nil
	if s.player != nil {
		if err := s.player.Close(); err != nil {
			s.log.Warn("closing audio output", "err", err)
		}
		s.player = nil
	}
}

func clonePrompts(in []wire.WeightedPrompt) []wire.WeightedPrompt {
	out := make([]wire.WeightedPrompt, len(in))
	copy(out, in)
	return out
}
