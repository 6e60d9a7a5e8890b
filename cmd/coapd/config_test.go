package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/logging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Listen != ":5683" || cfg.Name != "coapd" || cfg.LogLevel != "info" {
		t.Errorf("defaults = %+v", cfg)
	}
	p := cfg.Params()
	if p.AckTimeout != 2*time.Second || p.MaxRetransmit != 4 {
		t.Errorf("Params() = %+v, want RFC 7252 defaults", p)
	}
}

func TestLoadConfigLayering(t *testing.T) {
	yamlPath := writeFile(t, "coapd.yaml", `
listen: ":6000"
name: kitchen
ack_timeout: 1s
max_retransmit: 2
origins:
  - coap://10.0.0.3:5683/echo
cache_size: 4096
`)
	envPath := writeFile(t, ".env", "COAPD_NAME=hallway\nCOAPD_LOG_LEVEL=debug\n")
	t.Cleanup(func() { os.Unsetenv("COAPD_NAME") })
	t.Setenv("COAPD_LOG_LEVEL", "warn")
	t.Setenv("COAPD_ORIGINS", "coap://a/x,coap://b/y")

	cfg, err := LoadConfig(yamlPath, envPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"listen from yaml", cfg.Listen, ":6000"},
		{"name from dotenv", cfg.Name, "hallway"},
		{"process env beats dotenv", cfg.LogLevel, "warn"},
		{"ack timeout", cfg.AckTimeout, time.Second},
		{"max retransmit", cfg.MaxRetransmit, 2},
		{"cache size", cfg.CacheSize, 4096},
		{"origins from env", len(cfg.Origins), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if p := cfg.Params(); p.AckTimeout != time.Second || p.AckRandomFactor != 1.5 {
		t.Errorf("Params() = %+v", p)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Error("missing config file accepted")
	}
	bad := writeFile(t, "bad.yaml", "listen: [")
	if _, err := LoadConfig(bad, ""); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.LogLevel
		wantErr bool
	}{
		{"", logging.LogLevelInfo, false},
		{"INFO", logging.LogLevelInfo, false},
		{"warning", logging.LogLevelWarn, false},
		{"debug", logging.LogLevelDebug, false},
		{"trace", logging.LogLevelTrace, false},
		{"off", logging.LogLevelDisabled, false},
		{"loud", logging.LogLevelDisabled, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLogLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
