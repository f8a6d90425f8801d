package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation boundaries.
type Policy struct {
	MinLength int
	MaxLength int
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns a baseline at least as strong as bcrypt cost 10-12
// for offline brute-force resistance. Values can be overridden via env.
func DefaultConfig() Config {
	// Clamp parallelism to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 128,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - WREN_PASSWORD_MIN_LEN
// - WREN_PASSWORD_MAX_LEN
// - WREN_ARGON2_MEMORY_KIB
// - WREN_ARGON2_ITERATIONS
// - WREN_ARGON2_PARALLELISM
// - WREN_ARGON2_SALT_LEN
// - WREN_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("WREN_PASSWORD_MIN_LEN"); ok {
		n, err := atoiBounded(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("WREN_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("WREN_PASSWORD_MAX_LEN"); ok {
		n, err := atoiBounded(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("WREN_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("WREN_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32Bounded(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("WREN_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("WREN_ARGON2_ITERATIONS"); ok {
		u, err := atou32Bounded(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("WREN_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("WREN_ARGON2_PARALLELISM"); ok {
		u, err := atou32Bounded(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("WREN_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(u) // #nosec G115 -- bounded to [1..64] above.
	}

	if v, ok := os.LookupEnv("WREN_ARGON2_SALT_LEN"); ok {
		u, err := atou32Bounded(v, 8, 64)
		if err != nil {
			return Config{}, fmt.Errorf("WREN_ARGON2_SALT_LEN: %w", err)
		}
		cfg.Params.SaltLength = u
	}

	if v, ok := os.LookupEnv("WREN_ARGON2_KEY_LEN"); ok {
		u, err := atou32Bounded(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("WREN_ARGON2_KEY_LEN: %w", err)
		}
		cfg.Params.KeyLength = u
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiBounded(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32Bounded(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
