package session

import (
	"errors"

	"github.com/satindergrewal/vibejockey/internal/audio"
	"github.com/satindergrewal/vibejockey/internal/lyria"
	"github.com/satindergrewal/vibejockey/internal/wire"
)

func (s *Session) handleClientEvent(ev lyria.Event) {
	switch ev.Kind {
	case lyria.EventOpened:
		s.note("Socket opened. Waiting for setup...")

	case lyria.EventReady:
		if s.status != Connecting {
			return
		}
		s.setStatus(Ready)
		s.note("Session ready. Send prompts and press Play.")
		if s.autoApply {
			s.promptDebounce.schedule()
			s.configDebounce.schedule()
		}

	case lyria.EventMessage:
		s.handleMessage(ev.Message)

	case lyria.EventDecodeFailed:
		s.note("Dropped malformed message: %v", ev.Err)

	case lyria.EventClosed:
		if ev.Err != nil {
			s.note("Connection lost: %v. Check key and network.", ev.Err)
		}
		s.teardown()
		s.setStatus(Disconnected)
		s.note("Disconnected from Lyria RealTime.")
	}
}

func (s *Session) handleMessage(msg wire.Event) {
	switch m := msg.(type) {
	case wire.Warning:
		s.note("Warning: %s", m.Text)
	case wire.PromptFiltered:
		reason := m.Reason
		if reason == "" {
			reason = "Unknown reason"
		}
		s.note("Filtered prompt: %s", reason)
	case wire.AudioChunks:
		for _, err := range m.Dropped {
			s.note("Dropped audio chunk: %v", err)
		}
		for _, chunk := range m.Chunks {
			s.playChunk(chunk)
		}
	}
}

// playChunk hands one decoded chunk to the scheduler. Chunks that arrive
// while playback is stopped are discarded.
func (s *Session) playChunk(chunk wire.AudioChunk) {
	if chunk.Metadata != nil {
		s.lastMetadata = chunk.Metadata
	}
	if s.player == nil {
		return
	}
	if err := s.opts.Format.CheckMIME(chunk.MIMEType); err != nil {
		s.note("Dropped audio chunk: %v", err)
		return
	}
	_, err := s.player.Enqueue(chunk.Data)
	switch {
	case err == nil:
	case errors.Is(err, audio.ErrNotStarted):
		s.log.Debug("audio chunk before play", "bytes", len(chunk.Data))
	default:
		s.note("Dropped audio chunk: %v", err)
	}
}

func (s *Session) handleFire(f fire) {
	d := s.promptDebounce
	if f.kind == applyConfig {
		d = s.configDebounce
	}
	if !d.take(f) {
		return
	}
	if !s.autoApply || !s.status.canSend() {
		return
	}
	s.log.Debug("auto-apply", "kind", f.kind)
	switch f.kind {
	case applyPrompts:
		s.sendPrompts()
	case applyConfig:
		s.updateConfig(UpdateOptions{})
	}
}
