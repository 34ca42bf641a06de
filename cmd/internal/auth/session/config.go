package session

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// APIHost is the backend base URL, e.g. https://api.caelium.co.
	APIHost string `env:"CAELIUM_API_HOST" envDefault:"http://localhost:8000"`

	// RenewBefore is how long before access-token expiry the renewal fires.
	RenewBefore time.Duration `env:"CAELIUM_RENEW_BEFORE" envDefault:"5m"`

	// ExchangeTimeout bounds one login or refresh round trip.
	ExchangeTimeout time.Duration `env:"CAELIUM_EXCHANGE_TIMEOUT" envDefault:"15s"`

	LoginPath   string `env:"CAELIUM_LOGIN_PATH" envDefault:"/dash/login/"`
	RefreshPath string `env:"CAELIUM_REFRESH_PATH" envDefault:"/api/dash/login/refresh/"`
}

// DefaultConfig returns the configuration the dashboard backend expects.
func DefaultConfig() Config {
	return Config{
		APIHost:         "http://localhost:8000",
		RenewBefore:     5 * time.Minute,
		ExchangeTimeout: 15 * time.Second,
		LoginPath:       "/dash/login/",
		RefreshPath:     "/api/dash/login/refresh/",
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - CAELIUM_API_HOST
//   - CAELIUM_RENEW_BEFORE
//   - CAELIUM_EXCHANGE_TIMEOUT
//   - CAELIUM_LOGIN_PATH
//   - CAELIUM_REFRESH_PATH
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants.
func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.APIHost))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api host must be an absolute http(s) URL", ErrConfig)
	}
	if c.RenewBefore < 0 {
		return fmt.Errorf("%w: renew-before must not be negative", ErrConfig)
	}
	if c.ExchangeTimeout <= 0 {
		return fmt.Errorf("%w: exchange timeout must be positive", ErrConfig)
	}
	if !strings.HasPrefix(c.LoginPath, "/") || !strings.HasPrefix(c.RefreshPath, "/") {
		return fmt.Errorf("%w: exchange paths must start with /", ErrConfig)
	}
	return nil
}
