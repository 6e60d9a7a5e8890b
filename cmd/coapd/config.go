package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment variable coapd reads.
const envPrefix = "COAPD_"

// Config holds the settings of all coapd commands.
type Config struct {
	Listen   string `yaml:"listen" env:"LISTEN"`
	Name     string `yaml:"name" env:"NAME"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// MetricsAddr serves /metrics when set.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	// Advertise registers the endpoint over mDNS.
	Advertise bool `yaml:"advertise" env:"ADVERTISE"`

	MaxWorkers int64 `yaml:"max_workers" env:"MAX_WORKERS"`

	AckTimeout      time.Duration `yaml:"ack_timeout" env:"ACK_TIMEOUT"`
	AckRandomFactor float64       `yaml:"ack_random_factor" env:"ACK_RANDOM_FACTOR"`
	MaxRetransmit   int           `yaml:"max_retransmit" env:"MAX_RETRANSMIT"`

	// Origins are the resources a proxy serves.
	Origins []string `yaml:"origins" env:"ORIGINS" envSeparator:","`

	CacheSize  int    `yaml:"cache_size" env:"CACHE_SIZE"`
	CacheStore string `yaml:"cache_store" env:"CACHE_STORE"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Listen:   ":5683",
		Name:     "coapd",
		LogLevel: "info",
	}
}

// LoadConfig reads path (optional), then envFile (ignored when missing),
// then the process environment. Later sources win.
func LoadConfig(path, envFile string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Params returns the transmission parameters; unset fields keep RFC 7252
// defaults.
func (c Config) Params() exchange.TransmissionParameters {
	return exchange.TransmissionParameters{
		AckTimeout:      c.AckTimeout,
		AckRandomFactor: c.AckRandomFactor,
		MaxRetransmit:   c.MaxRetransmit,
	}.WithDefaults()
}

// LoggerFactory returns a pion logger factory at the configured level.
func (c Config) LoggerFactory() (logging.LoggerFactory, error) {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = level
	return f, nil
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "", "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
}
