package sealer

import (
	"fmt"
	"math"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id key-stretching cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
}

// Policy controls passphrase validation.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline used for the token store.
// Sealing runs on every login and refresh, so cost stays below interactive-login levels.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   32 * 1024,      // 32 MiB
			Iterations:  2,              // refresh path, keep it short
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
		},
		Policy: Policy{
			MinLength:      12,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

type envConfig struct {
	MinLength      *int    `env:"CAELIUM_SEAL_PASSPHRASE_MIN_LEN"`
	MaxLength      *int    `env:"CAELIUM_SEAL_PASSPHRASE_MAX_LEN"`
	RejectVeryWeak *bool   `env:"CAELIUM_SEAL_REJECT_VERY_WEAK"`
	MemoryKiB      *uint32 `env:"CAELIUM_ARGON2_MEMORY_KIB"`
	Iterations     *uint32 `env:"CAELIUM_ARGON2_ITERATIONS"`
	Parallelism    *uint32 `env:"CAELIUM_ARGON2_PARALLELISM"`
	SaltLength     *uint32 `env:"CAELIUM_ARGON2_SALT_LEN"`
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - CAELIUM_SEAL_PASSPHRASE_MIN_LEN
// - CAELIUM_SEAL_PASSPHRASE_MAX_LEN
// - CAELIUM_SEAL_REJECT_VERY_WEAK (true/false)
// - CAELIUM_ARGON2_MEMORY_KIB
// - CAELIUM_ARGON2_ITERATIONS
// - CAELIUM_ARGON2_PARALLELISM
// - CAELIUM_ARGON2_SALT_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("sealer env: %w", err)
	}

	if raw.MinLength != nil {
		if err := inRange("CAELIUM_SEAL_PASSPHRASE_MIN_LEN", *raw.MinLength, 1, 1024); err != nil {
			return Config{}, err
		}
		cfg.Policy.MinLength = *raw.MinLength
	}
	if raw.MaxLength != nil {
		if err := inRange("CAELIUM_SEAL_PASSPHRASE_MAX_LEN", *raw.MaxLength, 1, 4096); err != nil {
			return Config{}, err
		}
		cfg.Policy.MaxLength = *raw.MaxLength
	}
	if raw.RejectVeryWeak != nil {
		cfg.Policy.RejectVeryWeak = *raw.RejectVeryWeak
	}
	if raw.MemoryKiB != nil {
		if err := inRange("CAELIUM_ARGON2_MEMORY_KIB", int(*raw.MemoryKiB), 8*1024, 1024*1024); err != nil {
			return Config{}, err
		}
		cfg.Params.MemoryKiB = *raw.MemoryKiB
	}
	if raw.Iterations != nil {
		if err := inRange("CAELIUM_ARGON2_ITERATIONS", int(*raw.Iterations), 1, 20); err != nil {
			return Config{}, err
		}
		cfg.Params.Iterations = *raw.Iterations
	}
	if raw.Parallelism != nil {
		if err := inRange("CAELIUM_ARGON2_PARALLELISM", int(*raw.Parallelism), 1, math.MaxUint8); err != nil {
			return Config{}, err
		}
		cfg.Params.Parallelism = uint8(*raw.Parallelism) // #nosec G115 -- range-checked above.
	}
	if raw.SaltLength != nil {
		if err := inRange("CAELIUM_ARGON2_SALT_LEN", int(*raw.SaltLength), 8, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.SaltLength = *raw.SaltLength
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"passphrase policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func inRange(key string, v, minVal, maxVal int) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%s: out of range [%d..%d]", key, minVal, maxVal)
	}
	return nil
}
