package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/satindergrewal/vibejockey/internal/audio"
	"github.com/satindergrewal/vibejockey/internal/lyria"
	"github.com/satindergrewal/vibejockey/internal/wire"
)

// UpdateOptions tunes a single UpdateConfig call.
type UpdateOptions struct {
	// ResetContext overrides the reset-on-config-change preference when set.
	ResetContext *bool
}

// Connect opens a new connection with a fresh client and audio scheduler.
// It is rejected, with an activity entry, when apiKey is blank or the
// session is not disconnected. An empty model uses lyria.DefaultModel.
func (s *Session) Connect(apiKey, model string) error {
	var err error
	if cerr := s.call(func() { err = s.connect(apiKey, model) }); cerr != nil {
		return cerr
	}
	return err
}

// Disconnect tears everything down and returns to Disconnected from any state.
func (s *Session) Disconnect() error {
	return s.call(s.disconnect)
}

// SetPrompts replaces the prompt set. Prompts without an ID get one.
func (s *Session) SetPrompts(prompts []wire.WeightedPrompt) error {
	var err error
	if cerr := s.call(func() { err = s.setPrompts(prompts) }); cerr != nil {
		return cerr
	}
	return err
}

// SetConfig replaces the generation config.
func (s *Session) SetConfig(cfg wire.GenerationConfig) error {
	return s.call(func() {
		s.config = cloneConfig(cfg)
		if s.autoApply && s.status.canSend() {
			s.configDebounce.schedule()
		}
	})
}

// SendPrompts sends the current prompt set now.
func (s *Session) SendPrompts() error {
	var err error
	if cerr := s.call(func() { err = s.sendPrompts() }); cerr != nil {
		return cerr
	}
	return err
}

// UpdateConfig sends the current config now, followed by RESET_CONTEXT when
// the preference (or opts) asks for it.
func (s *Session) UpdateConfig(opts UpdateOptions) error {
	var err error
	if cerr := s.call(func() { err = s.updateConfig(opts) }); cerr != nil {
		return cerr
	}
	return err
}

// SendPlayback issues a transport command and applies its local effect.
func (s *Session) SendPlayback(ctrl wire.PlaybackControl) error {
	var err error
	if cerr := s.call(func() { err = s.sendPlayback(ctrl) }); cerr != nil {
		return cerr
	}
	return err
}

// SetAutoApply toggles debounced sending of edits. Turning it on while
// connected applies the current prompts and config after the quiet window.
func (s *Session) SetAutoApply(on bool) error {
	return s.call(func() {
		s.autoApply = on
		if !on {
			s.promptDebounce.cancel()
			s.configDebounce.cancel()
			return
		}
		if s.status.canSend() {
			s.promptDebounce.schedule()
			s.configDebounce.schedule()
		}
	})
}

// SetResetOnConfigUpdate toggles the RESET_CONTEXT follow-up on config sends.
func (s *Session) SetResetOnConfigUpdate(on bool) error {
	return s.call(func() { s.resetOnConfigUpdate = on })
}

// ClearLogs leaves a single "Log cleared." entry.
func (s *Session) ClearLogs() error {
	return s.call(func() {
		s.activity.Reset("Log cleared.")
	})
}

// State returns a copy of the observable state.
func (s *Session) State() (Snapshot, error) {
	var snap Snapshot
	err := s.call(func() {
		snap = Snapshot{
			Status:              s.status,
			Model:               s.model,
			Prompts:             clonePrompts(s.prompts),
			Config:              cloneConfig(s.config),
			Logs:                s.activity.Entries(),
			LastMetadata:        append([]byte(nil), s.lastMetadata...),
			AutoApply:           s.autoApply,
			ResetOnConfigUpdate: s.resetOnConfigUpdate,
		}
	})
	return snap, err
}

func (s *Session) connect(apiKey, model string) error {
	if strings.TrimSpace(apiKey) == "" {
		s.note("Add your API key before connecting.")
		return ErrEmptyCredential
	}
	if s.status != Disconnected {
		s.note("Already %s. Disconnect before connecting again.", s.status)
		return ErrAlreadyConnected
	}
	if model = strings.TrimSpace(model); model == "" {
		model = lyria.DefaultModel
	}

	player, err := audio.NewScheduler(audio.SchedulerConfig{
		Format:           s.opts.Format,
		StartupLatency:   s.opts.StartupLatency,
		SchedulingMargin: s.opts.SchedulingMargin,
		NewDevice:        s.opts.NewDevice,
	})
	if err != nil {
		s.note("Audio output unavailable: %v", err)
		return err
	}

	client := lyria.NewClient(s.opts.Dialer, s.log)
	s.player = player
	s.client = client
	s.clientEvents = client.Events()
	s.model = model

	s.setStatus(Connecting)
	s.note("Connecting to %s...", model)

	if err := client.Connect(s.ctx, s.opts.Endpoint, apiKey, model); err != nil {
		s.teardown()
		s.setStatus(Disconnected)
		s.note("Connect failed: %v", err)
		return err
	}
	return nil
}

func (s *Session) disconnect() {
	s.teardown()
	s.setStatus(Disconnected)
	s.note("Session closed.")
}

func (s *Session) setPrompts(prompts []wire.WeightedPrompt) error {
	next := clonePrompts(prompts)
	seen := make(map[string]struct{}, len(next))
	for i := range next {
		if next[i].ID == "" {
			next[i].ID = uuid.NewString()
		}
		if _, dup := seen[next[i].ID]; dup {
			s.note("Prompt set rejected: duplicate id %q.", next[i].ID)
			return fmt.Errorf("%w: %q", ErrDuplicatePromptID, next[i].ID)
		}
		seen[next[i].ID] = struct{}{}
	}
	s.prompts = next
	if s.autoApply && s.status.canSend() {
		s.promptDebounce.schedule()
	}
	return nil
}

// clientOrNotReady returns the live client, or lyria.ErrNotReady if there
// is none.
func (s *Session) clientOrNotReady() (*lyria.Client, error) {
	if s.client == nil {
		return nil, lyria.ErrNotReady
	}
	return s.client, nil
}

func (s *Session) sendPrompts() error {
	client, err := s.clientOrNotReady()
	if err == nil {
		err = client.SendPrompts(s.prompts)
	}
	if err != nil {
		s.note("Prompts not sent: %s", describe(err))
		return err
	}
	s.note("Prompts sent to Lyria.")
	return nil
}

func (s *Session) updateConfig(opts UpdateOptions) error {
	client, err := s.clientOrNotReady()
	if err == nil {
		err = client.SendConfig(s.config)
	}
	if err != nil {
		s.note("Config not sent: %s", describe(err))
		return err
	}
	s.note("Generation config updated.")

	reset := s.resetOnConfigUpdate
	if opts.ResetContext != nil {
		reset = *opts.ResetContext
	}
	if !reset {
		return nil
	}
	if err := client.SendPlayback(wire.ResetContext); err != nil {
		s.note("Context reset not sent: %s", describe(err))
		return err
	}
	s.note("Context reset after config change.")
	return nil
}

func (s *Session) sendPlayback(ctrl wire.PlaybackControl) error {
	client, err := s.clientOrNotReady()
	if err == nil {
		err = client.SendPlayback(ctrl)
	}
	if err != nil {
		s.note("%s not sent: %s", ctrl, describe(err))
		return err
	}

	switch ctrl {
	case wire.Play:
		s.setStatus(Playing)
		s.note("Playback started.")
		if err := s.player.EnsureStarted(); err != nil {
			s.note("Audio output unavailable: %v", err)
		}
	case wire.Pause:
		s.setStatus(Paused)
		s.note("Playback paused.")
	case wire.Stop:
		s.setStatus(Ready)
		if err := s.player.Reset(); err != nil {
			s.log.Warn("resetting audio output", "err", err)
		}
		s.note("Playback stopped and context reset.")
	case wire.ResetContext:
		s.note("Context reset.")
	}
	return nil
}

// describe turns a send error into activity-log wording.
func describe(err error) string {
	var te *lyria.TransportError
	switch {
	case errors.Is(err, lyria.ErrNotReady):
		return "session is not ready"
	case errors.As(err, &te):
		return "socket error: " + te.Err.Error()
	}
	return err.Error()
}

func cloneConfig(c wire.GenerationConfig) wire.GenerationConfig {
	out := c
	out.Temperature = clonePtr(c.Temperature)
	out.TopK = clonePtr(c.TopK)
	out.Seed = clonePtr(c.Seed)
	out.Guidance = clonePtr(c.Guidance)
	out.BPM = clonePtr(c.BPM)
	out.Density = clonePtr(c.Density)
	out.Brightness = clonePtr(c.Brightness)
	out.MuteBass = clonePtr(c.MuteBass)
	out.MuteDrums = clonePtr(c.MuteDrums)
	out.OnlyBassAndDrums = clonePtr(c.OnlyBassAndDrums)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
