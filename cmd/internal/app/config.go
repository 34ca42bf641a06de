package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/realtime"
	"github.com/Jerit-Baiju/caelium-admin/cmd/security/sealer"
)

// Store backends.
const (
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// EnvFileEnv names an explicit dotenv file. Without it ./.env is read when present.
const EnvFileEnv = "CAELIUM_ENV_FILE"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	APIHost string `env:"CAELIUM_API_HOST" envDefault:"http://localhost:8000"`

	LogLevel  string `env:"CAELIUM_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CAELIUM_LOG_FORMAT" envDefault:"pretty"`
	LogColor  bool   `env:"CAELIUM_LOG_COLOR" envDefault:"true"`

	// DataDir holds the bolt store. Empty means <user config dir>/caelium.
	DataDir      string `env:"CAELIUM_DATA_DIR"`
	StoreBackend string `env:"CAELIUM_STORE" envDefault:"bolt"`

	DatabaseURL string `env:"CAELIUM_DATABASE_URL"`
	DBMaxConns  int32  `env:"CAELIUM_DB_MAX_CONNS" envDefault:"4"`
	DBMinConns  int32  `env:"CAELIUM_DB_MIN_CONNS" envDefault:"0"`

	RedisURL    string `env:"CAELIUM_REDIS_URL"`
	RedisPrefix string `env:"CAELIUM_REDIS_PREFIX" envDefault:"caelium:"`

	// StorePassphrase seals the stored pair at rest when set.
	StorePassphrase string `env:"CAELIUM_STORE_PASSPHRASE"`

	// Security policy:
	// RequireSealedStore: CAELIUM_STORE_PASSPHRASE MUST be set.
	// RequireFingerprintKey: CAELIUM_TOKEN_FINGERPRINT_KEY MUST be set (>= 32 bytes).
	RequireSealedStore    bool `env:"CAELIUM_REQUIRE_SEALED_STORE" envDefault:"false"`
	RequireFingerprintKey bool `env:"CAELIUM_REQUIRE_FINGERPRINT_KEY" envDefault:"false"`

	// RequestTimeout bounds one gateway request.
	RequestTimeout time.Duration `env:"CAELIUM_REQUEST_TIMEOUT" envDefault:"30s"`
	// RefreshThreshold is the remaining validity under which a request refreshes first.
	RefreshThreshold time.Duration `env:"CAELIUM_REFRESH_THRESHOLD" envDefault:"60s"`

	// Origin is sent on the channel handshake when set.
	Origin string `env:"CAELIUM_ORIGIN"`

	OpsAddr              string        `env:"CAELIUM_OPS_ADDR" envDefault:"127.0.0.1:9464"`
	OpsReadHeaderTimeout time.Duration `env:"CAELIUM_OPS_READ_HEADER_TIMEOUT" envDefault:"5s"`
	OpsWriteTimeout      time.Duration `env:"CAELIUM_OPS_WRITE_TIMEOUT" envDefault:"15s"`

	Session session.Config
	Channel realtime.Config
	Sealer  sealer.Config
}

// LoadConfig reads the dotenv file (if any), then the environment.
// Variables already set in the environment win over the file.
func LoadConfig() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	sc, err := sealer.FromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Sealer = sc

	cfg.APIHost = strings.TrimRight(strings.TrimSpace(cfg.APIHost), "/")
	cfg.Session.APIHost = cfg.APIHost
	cfg.Channel.APIHost = cfg.APIHost

	if cfg.DataDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("config: data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(dir, "caelium")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if _, err := realtime.Endpoint(c.APIHost, "token"); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.StoreBackend {
	case StoreBolt, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: CAELIUM_STORE=postgres requires CAELIUM_DATABASE_URL")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("config: CAELIUM_STORE=redis requires CAELIUM_REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.StoreBackend)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}

	if c.RequestTimeout <= 0 {
		return errors.New("config: request timeout must be positive")
	}
	if c.RefreshThreshold < 0 {
		return errors.New("config: refresh threshold must not be negative")
	}
	return nil
}

// BoltPath is where the bolt backend keeps its file.
func (c Config) BoltPath() string {
	return filepath.Join(c.DataDir, "session.db")
}

func loadDotEnv() error {
	if p := strings.TrimSpace(os.Getenv(EnvFileEnv)); p != "" {
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: %s: %w", EnvFileEnv, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("config: .env: %w", err)
		}
	}
	return nil
}
