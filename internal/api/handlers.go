package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/satindergrewal/vibejockey/internal/lyria"
	"github.com/satindergrewal/vibejockey/internal/presets"
	"github.com/satindergrewal/vibejockey/internal/session"
	"github.com/satindergrewal/vibejockey/internal/wire"
)

type handler struct {
	deck    Deck
	presets *presets.Library
	apiKey  string
	model   string
}

type connectReq struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

type promptReq struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type applyReq struct {
	ResetContext *bool `json:"reset_context"`
}

type playbackReq struct {
	Control wire.PlaybackControl `json:"control"`
}

type settingsReq struct {
	AutoApply           *bool `json:"auto_apply"`
	ResetOnConfigUpdate *bool `json:"reset_on_config_update"`
}

// statusFor maps a deck error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrEmptyCredential):
		return http.StatusBadRequest, "empty_credential"
	case errors.Is(err, session.ErrDuplicatePromptID):
		return http.StatusBadRequest, "duplicate_prompt_id"
	case errors.Is(err, wire.ErrUnknownControl):
		return http.StatusBadRequest, "unknown_control"
	case errors.Is(err, session.ErrAlreadyConnected):
		return http.StatusConflict, "already_connected"
	case errors.Is(err, lyria.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable, "stopped"
	}
	return http.StatusBadGateway, "upstream"
}

func fail(c *gin.Context, err error) {
	code, name := statusFor(err)
	c.JSON(code, gin.H{"error": name, "message": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": msg})
}

// bind decodes an optional JSON body. An empty body leaves v untouched.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return false
	}
	return true
}

// respond writes err, or the fresh state on success.
func (h *handler) respond(c *gin.Context, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	h.state(c)
}

func (h *handler) state(c *gin.Context) {
	snap, err := h.deck.State()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) connect(c *gin.Context) {
	var req connectReq
	if !bind(c, &req) {
		return
	}
	key, model := req.APIKey, req.Model
	if strings.TrimSpace(key) == "" {
		key = h.apiKey
	}
	if strings.TrimSpace(model) == "" {
		model = h.model
	}
	h.respond(c, h.deck.Connect(key, model))
}

func (h *handler) disconnect(c *gin.Context) {
	h.respond(c, h.deck.Disconnect())
}

func (h *handler) setPrompts(c *gin.Context) {
	var req []promptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	prompts := make([]wire.WeightedPrompt, 0, len(req))
	for i, p := range req {
		if strings.TrimSpace(p.Text) == "" {
			badRequest(c, "prompt "+strconv.Itoa(i+1)+" has no text")
			return
		}
		if err := wire.CheckWeight(p.Weight); err != nil {
			badRequest(c, "prompt "+strconv.Itoa(i+1)+": "+err.Error())
			return
		}
		prompts = append(prompts, wire.WeightedPrompt{ID: p.ID, Text: p.Text, Weight: p.Weight})
	}
	h.respond(c, h.deck.SetPrompts(prompts))
}

func (h *handler) sendPrompts(c *gin.Context) {
	h.respond(c, h.deck.SendPrompts())
}

func (h *handler) setConfig(c *gin.Context) {
	var cfg wire.GenerationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := wire.CheckConfig(cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respond(c, h.deck.SetConfig(cfg))
}

func (h *handler) applyConfig(c *gin.Context) {
	var req applyReq
	if !bind(c, &req) {
		return
	}
	h.respond(c, h.deck.UpdateConfig(session.UpdateOptions{ResetContext: req.ResetContext}))
}

func (h *handler) playback(c *gin.Context) {
	var req playbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !req.Control.Valid() {
		fail(c, wire.ErrUnknownControl)
		return
	}
	h.respond(c, h.deck.SendPlayback(req.Control))
}

func (h *handler) settings(c *gin.Context) {
	var req settingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.AutoApply != nil {
		if err := h.deck.SetAutoApply(*req.AutoApply); err != nil {
			fail(c, err)
			return
		}
	}
	if req.ResetOnConfigUpdate != nil {
		if err := h.deck.SetResetOnConfigUpdate(*req.ResetOnConfigUpdate); err != nil {
			fail(c, err)
			return
		}
	}
	h.state(c)
}

func (h *handler) clearLogs(c *gin.Context) {
	h.respond(c, h.deck.ClearLogs())
}

func (h *handler) listPresets(c *gin.Context) {
	if h.presets == nil {
		c.JSON(http.StatusOK, []presets.Preset{})
		return
	}
	c.JSON(http.StatusOK, h.presets.All())
}

func (h *handler) applyPreset(c *gin.Context) {
	label := c.Param("label")
	var p presets.Preset
	ok := false
	if h.presets != nil {
		p, ok = h.presets.Find(label)
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no preset " + label})
		return
	}
	h.respond(c, h.deck.SetPrompts(p.Instantiate()))
}

func (h *handler) ranges(c *gin.Context) {
	c.JSON(http.StatusOK, wire.Ranges)
}
