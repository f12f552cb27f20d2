package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// maxBcryptBytes is the input length bcrypt actually reads.
const maxBcryptBytes = 72

// Policy controls password validation.
type Policy struct {
	MinLength int
	// MaxBytes is capped at 72 regardless of configuration.
	MaxBytes       int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	// Cost is the bcrypt work factor. Production keeps bcrypt.DefaultCost (10);
	// tests may lower it to bcrypt.MinCost.
	Cost   int
	Policy Policy
}

// DefaultConfig returns the production baseline.
func DefaultConfig() Config {
	return Config{
		Cost: bcrypt.DefaultCost,
		Policy: Policy{
			MinLength:      8,
			MaxBytes:       maxBcryptBytes,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - FORUM_PASSWORD_MIN_LEN
// - FORUM_PASSWORD_REJECT_VERY_WEAK (true/false)
//
// The bcrypt cost is not configurable from the environment.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("FORUM_PASSWORD_MIN_LEN"); ok {
		n, err := atoiInRange(v, 1, maxBcryptBytes)
		if err != nil {
			return Config{}, fmt.Errorf("FORUM_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("FORUM_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("FORUM_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	return cfg, nil
}

func (c Config) cost() int {
	if c.Cost < bcrypt.MinCost || c.Cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return c.Cost
}

func (c Config) maxBytes() int {
	if c.Policy.MaxBytes <= 0 || c.Policy.MaxBytes > maxBcryptBytes {
		return maxBcryptBytes
	}
	return c.Policy.MaxBytes
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
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
