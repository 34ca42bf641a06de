package realtime

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls the channel. Zero fields fall back to defaults.
type Config struct {
	APIHost string `env:"CAELIUM_API_HOST" envDefault:"http://localhost:8000"`

	MaxRetries  int           `env:"CAELIUM_CHANNEL_MAX_RETRIES" envDefault:"10"`
	StableAfter time.Duration `env:"CAELIUM_CHANNEL_STABLE_AFTER" envDefault:"30s"`
	BaseDelay   time.Duration `env:"CAELIUM_CHANNEL_BASE_DELAY" envDefault:"500ms"`
	MaxDelay    time.Duration `env:"CAELIUM_CHANNEL_MAX_DELAY" envDefault:"10s"`

	DialTimeout  time.Duration `env:"CAELIUM_CHANNEL_DIAL_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"CAELIUM_CHANNEL_WRITE_TIMEOUT" envDefault:"5s"`

	// HeartbeatInterval of zero disables pings.
	HeartbeatInterval time.Duration `env:"CAELIUM_CHANNEL_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"CAELIUM_CHANNEL_HEARTBEAT_TIMEOUT" envDefault:"5s"`

	SendRateEvents  int           `env:"CAELIUM_CHANNEL_RATE_EVENTS" envDefault:"120"`
	SendRateWindow  time.Duration `env:"CAELIUM_CHANNEL_RATE_WINDOW" envDefault:"10s"`
	SubscriberQueue int           `env:"CAELIUM_CHANNEL_SUBSCRIBER_QUEUE" envDefault:"256"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		APIHost:           "http://localhost:8000",
		MaxRetries:        DefaultMaxRetries,
		StableAfter:       DefaultStableAfter,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		DialTimeout:       defaultDialTimeout,
		WriteTimeout:      defaultWriteTimeout,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		SendRateEvents:    rateLimitEvents,
		SendRateWindow:    rateLimitWindow,
		SubscriberQueue:   defaultSubscriberQueue,
	}
}

// LoadConfigFromEnv reads CAELIUM_CHANNEL_* (and CAELIUM_API_HOST).
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("channel config: %w", err)
	}
	if _, err := Endpoint(cfg.APIHost, "token"); err != nil {
		return Config{}, fmt.Errorf("channel config: %w", err)
	}
	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("channel config: max retries must not be negative")
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.APIHost == "" {
		c.APIHost = d.APIHost
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.StableAfter <= 0 {
		c.StableAfter = d.StableAfter
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval < 0 {
		c.HeartbeatInterval = 0
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.SendRateEvents <= 0 {
		c.SendRateEvents = d.SendRateEvents
	}
	if c.SendRateWindow <= 0 {
		c.SendRateWindow = d.SendRateWindow
	}
	if c.SubscriberQueue <= 0 {
		c.SubscriberQueue = d.SubscriberQueue
	}
	return c
}
