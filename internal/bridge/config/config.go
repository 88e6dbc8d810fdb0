package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the voice bridge configuration.
type Config struct {
	ListenAddr   string
	StreamPath   string // HTTP path of the media-stream WebSocket endpoint
	RealtimeURL  string
	RealtimeKey  string
	Model        string
	CommitGap    time.Duration // silence gap before an utterance commit, 0 disables
	RecordingDir string        // empty disables call recording
	LogLevel     string
}

// Load loads configuration from command line flags and environment
// variables. Environment variables override flags.
func Load() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddr, "listen", ":8080", "HTTP listen address")
	flag.StringVar(&cfg.StreamPath, "stream-path", "/media-stream", "Media-stream WebSocket path")
	flag.StringVar(&cfg.RealtimeURL, "realtime-url", "wss://api.openai.com/v1/realtime", "Realtime API WebSocket URL")
	flag.StringVar(&cfg.Model, "model", "gpt-4o-realtime-preview", "Realtime model")
	flag.DurationVar(&cfg.CommitGap, "commit-gap", 700*time.Millisecond, "Silence gap before committing the input buffer (0 disables)")
	flag.StringVar(&cfg.RecordingDir, "recording-dir", "", "Directory for call recordings (empty disables)")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level")

	flag.Parse()

	// Environment overrides
	if v := os.Getenv("LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STREAM_PATH"); v != "" {
		cfg.StreamPath = v
	}
	if v := os.Getenv("REALTIME_URL"); v != "" {
		cfg.RealtimeURL = v
	}
	if v := os.Getenv("REALTIME_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("COMMIT_GAP_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.CommitGap = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("RECORDING_DIR"); v != "" {
		cfg.RecordingDir = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// The API key is secret and comes from the environment only.
	cfg.RealtimeKey = os.Getenv("OPENAI_API_KEY")

	return cfg
}
