package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "server address must not be empty",
			mutate: func(c *Config) {
				c.Server.Address = ""
			},
		},
		{
			name: "signaling path must start with slash",
			mutate: func(c *Config) {
				c.Signaling.Path = "ws"
			},
		},
		{
			name: "pong timeout must exceed ping interval",
			mutate: func(c *Config) {
				c.Signaling.PingInterval = time.Minute
				c.Signaling.PongTimeout = time.Second
			},
		},
		{
			name: "port range must be set as a pair",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50000
				c.WebRTC.PortRange.Max = 0
			},
		},
		{
			name: "port range min must be below max",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50010
				c.WebRTC.PortRange.Max = 50000
			},
		},
		{
			name: "capture dimensions must be positive",
			mutate: func(c *Config) {
				c.Capture.Width = 0
			},
		},
		{
			name: "capture frame rate must be positive",
			mutate: func(c *Config) {
				c.Capture.FrameRate = -1
			},
		},
		{
			name: "default mode must be known",
			mutate: func(c *Config) {
				c.Stream.DefaultMode = "hologram"
			},
		},
		{
			name: "tracking poll interval must be positive",
			mutate: func(c *Config) {
				c.Tracking.PollInterval = 0
			},
		},
		{
			name: "discovery instance required when enabled",
			mutate: func(c *Config) {
				c.Discovery.Enabled = true
				c.Discovery.Instance = ""
			},
		},
		{
			name: "tracing sample rate must be within range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
		{
			name: "http rps must be > 0 when rate limiting enabled",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("expected default server address, got %q", cfg.Server.Address)
	}
	if cfg.Stream.DefaultMode != "video_audio_tracking" {
		t.Fatalf("expected default stream mode, got %q", cfg.Stream.DefaultMode)
	}
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	yamlBody := `
server:
  address: ":9999"
capture:
  width: 640
  height: 480
stream:
  default_mode: video_only
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.Server.Address != ":9999" {
		t.Fatalf("expected file value for server address, got %q", cfg.Server.Address)
	}
	if cfg.Capture.Width != 640 || cfg.Capture.Height != 480 {
		t.Fatalf("expected file capture profile, got %dx%d", cfg.Capture.Width, cfg.Capture.Height)
	}
	if cfg.Stream.DefaultMode != "video_only" {
		t.Fatalf("expected file stream mode, got %q", cfg.Stream.DefaultMode)
	}
	// untouched sections keep their defaults
	if cfg.Signaling.Path != "/ws" {
		t.Fatalf("expected default signaling path, got %q", cfg.Signaling.Path)
	}
}

func TestLoad_AppliesEnvOverrides(t *testing.T) {
	t.Setenv("ARCAST_SERVER_ADDRESS", ":7070")
	t.Setenv("ARCAST_LOG_LEVEL", "debug")
	t.Setenv("ARCAST_DEFAULT_MODE", "audio_only")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.Server.Address != ":7070" {
		t.Fatalf("expected env server address, got %q", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
	if cfg.Stream.DefaultMode != "audio_only" {
		t.Fatalf("expected env stream mode, got %q", cfg.Stream.DefaultMode)
	}
}
