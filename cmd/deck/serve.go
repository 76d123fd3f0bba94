package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/vibejockey/internal/api"
	"github.com/satindergrewal/vibejockey/internal/audio"
	"github.com/satindergrewal/vibejockey/internal/config"
	"github.com/satindergrewal/vibejockey/internal/logger"
	"github.com/satindergrewal/vibejockey/internal/lyria"
	"github.com/satindergrewal/vibejockey/internal/presets"
	"github.com/satindergrewal/vibejockey/internal/session"
	"github.com/satindergrewal/vibejockey/internal/stream"
)

func serveCmd() *cobra.Command {
	var addrFlag string
	var presetsFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the deck HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if presetsFlag != "" {
				cfg.PresetsFile = presetsFlag
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			addr := cfg.Addr()
			if addrFlag != "" {
				addr = addrFlag
			}
			return serve(cfg, addr)
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default :$DECK_PORT)")
	cmd.Flags().StringVar(&presetsFlag, "presets", "", "YAML preset library (default $DECK_PRESETS_FILE)")
	return cmd
}

func serve(cfg config.Config, addr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lib, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		return err
	}

	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if err := stream.CheckOpusFormat(format); err != nil {
		logger.Warn("WebRTC listeners unavailable", "err", err)
	}

	// Broadcaster: fan-out rendered PCM frames to all listeners
	broadcaster := stream.NewBroadcaster()
	webrtcHandler := stream.NewWebRTCHandler(broadcaster, format, logger.Log)

	sess := session.New(session.Options{
		Endpoint:            cfg.Endpoint,
		Format:              format,
		StartupLatency:      cfg.StartupLatency,
		SchedulingMargin:    cfg.SchedulingMargin,
		Debounce:            cfg.Debounce,
		LogCapacity:         cfg.LogCapacity,
		AutoApply:           cfg.AutoApply,
		ResetOnConfigUpdate: cfg.ResetOnConfigUpdate,
		Prompts:             session.DefaultPrompts(),
		Config:              session.DefaultConfig(),
		NewDevice:           audio.StreamDeviceFactory(broadcaster),
		Dialer:              lyria.NewWebsocketDialer(),
		OnStatus: func(s session.Status) {
			logger.Info("session status", "status", s)
		},
		Logger: logger.Log,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	if cfg.AutoConnect {
		if err := sess.Connect(cfg.APIKey, cfg.Model); err != nil {
			logger.Warn("auto-connect failed", "err", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Options{
		Deck:    sess,
		Presets: lib,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Stream:  stream.NewHTTPHandler(broadcaster, format, logger.Log),
		Offer:   webrtcHandler,
		Logger:  logger.Log,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("deck listening", "addr", addr, "model", cfg.Model, "presets", lib.Len(),
		"rate", format.SampleRate, "channels", format.Channels)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-runErr
		return err
	}

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("deck stopped")
	return nil
}
