package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebas/voicebridge/internal/banner"
	"github.com/sebas/voicebridge/internal/bridge"
	"github.com/sebas/voicebridge/internal/bridge/config"
	"github.com/sebas/voicebridge/internal/bridge/media"
	"github.com/sebas/voicebridge/internal/bridge/registry"
	"github.com/sebas/voicebridge/internal/logger"
	"github.com/sebas/voicebridge/internal/realtime"
	"github.com/sebas/voicebridge/internal/recorder"
	"github.com/sebas/voicebridge/internal/telephony"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.Init(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	recordingDir := cfg.RecordingDir
	if recordingDir == "" {
		recordingDir = "(disabled)"
	}

	// Print startup banner
	banner.Print("VOICE BRIDGE", []banner.ConfigLine{
		{Label: "Listen", Value: cfg.ListenAddr},
		{Label: "Stream path", Value: cfg.StreamPath},
		{Label: "Realtime URL", Value: cfg.RealtimeURL},
		{Label: "Model", Value: cfg.Model},
		{Label: "Commit gap", Value: cfg.CommitGap.String()},
		{Label: "Recording dir", Value: recordingDir},
		{Label: "Log level", Value: cfg.LogLevel},
	})

	if cfg.RealtimeKey == "" {
		slog.Error("OPENAI_API_KEY is not set")
		os.Exit(1)
	}

	reg := registry.New()
	sessions := realtime.NewManager(realtime.Config{
		URL:    cfg.RealtimeURL,
		APIKey: cfg.RealtimeKey,
		Model:  cfg.Model,
	})

	var tapFactory bridge.TapFactory
	if cfg.RecordingDir != "" {
		rec, err := recorder.New(cfg.RecordingDir)
		if err != nil {
			slog.Error("Failed to initialize recorder", "error", err)
			os.Exit(1)
		}
		tapFactory = func(callID string) io.WriteCloser {
			if t := rec.Open(callID); t != nil {
				return t
			}
			return nil
		}
	}

	controller := bridge.NewController(reg, sessions, media.Transcoder{}, tapFactory)
	streamServer := telephony.NewServer(controller, cfg.CommitGap)

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.StreamPath, streamServer.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"active_calls": reg.Len(),
			"frames":       controller.Stats(),
		})
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		slog.Info("Starting voice bridge", "listen", cfg.ListenAddr, "stream_path", cfg.StreamPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("Shutting down", "active_calls", reg.Len())

	// Drain active bridges before closing the listener.
	for _, callID := range reg.CallIDs() {
		controller.Stop(callID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	slog.Info("Shutdown complete")
}
