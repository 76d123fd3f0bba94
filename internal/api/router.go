// Package api exposes the live deck over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/satindergrewal/vibejockey/internal/presets"
	"github.com/satindergrewal/vibejockey/internal/session"
	"github.com/satindergrewal/vibejockey/internal/wire"
)

// Deck is the session surface the API drives. *session.Session implements it.
type Deck interface {
	State() (session.Snapshot, error)
	Connect(apiKey, model string) error
	Disconnect() error
	SetPrompts(prompts []wire.WeightedPrompt) error
	SendPrompts() error
	SetConfig(cfg wire.GenerationConfig) error
	UpdateConfig(opts session.UpdateOptions) error
	SendPlayback(ctrl wire.PlaybackControl) error
	SetAutoApply(on bool) error
	SetResetOnConfigUpdate(on bool) error
	ClearLogs() error
}

// Options wires the router.
type Options struct {
	Deck    Deck
	Presets *presets.Library
	// APIKey and Model are used by /api/connect when the request omits them.
	APIKey string
	Model  string
	// Stream and Offer serve the audio listeners; either may be nil.
	Stream http.Handler
	Offer  http.Handler
	Logger *slog.Logger
}

// NewRouter builds the gin engine for the deck.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(opts.Logger.With("component", "api")))

	h := &handler{deck: opts.Deck, presets: opts.Presets, apiKey: opts.APIKey, model: opts.Model}
	api := r.Group("/api")
	api.GET("/state", h.state)
	api.POST("/connect", h.connect)
	api.POST("/disconnect", h.disconnect)
	api.PUT("/prompts", h.setPrompts)
	api.POST("/prompts/send", h.sendPrompts)
	api.PUT("/config", h.setConfig)
	api.POST("/config/apply", h.applyConfig)
	api.POST("/playback", h.playback)
	api.PUT("/settings", h.settings)
	api.DELETE("/logs", h.clearLogs)
	api.GET("/presets", h.listPresets)
	api.POST("/presets/:label", h.applyPreset)
	api.GET("/ranges", h.ranges)

	if opts.Stream != nil {
		r.GET("/stream", gin.WrapH(opts.Stream))
	}
	if opts.Offer != nil {
		r.POST("/offer", gin.WrapH(opts.Offer))
		r.OPTIONS("/offer", gin.WrapH(opts.Offer))
	}
	return r
}

// requestLogger logs each request once it completes.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
