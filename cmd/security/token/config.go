package token

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// SecretEnvKey is the env var name for the signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "FORUM_JWT_SECRET"

	// LegacySecretEnvKey is read when SecretEnvKey is unset.
	// #nosec G101 -- not a credential; it's an environment variable name.
	LegacySecretEnvKey = "JWT_SECRET"

	// DefaultTTL is the lifetime of an issued token.
	DefaultTTL = time.Hour

	// MinStrongSecretBytes is the secret length enforced when strong secrets are required.
	MinStrongSecretBytes = 32
)

// Config carries everything the Service needs. There is no hardcoded secret.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// FromEnv reads the signing configuration.
//
// Env surface:
// - FORUM_JWT_SECRET (falls back to JWT_SECRET)
// - FORUM_JWT_ISSUER
// - FORUM_JWT_TTL (positive Go duration, default 1h; invalid values are an error)
func FromEnv() (Config, error) {
	raw := strings.TrimSpace(os.Getenv(SecretEnvKey))
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv(LegacySecretEnvKey))
	}
	if raw == "" {
		return Config{}, ErrSecretMissing
	}

	cfg := Config{
		Secret: []byte(raw),
		TTL:    DefaultTTL,
		Issuer: strings.TrimSpace(os.Getenv("FORUM_JWT_ISSUER")),
	}

	if v := strings.TrimSpace(os.Getenv("FORUM_JWT_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("FORUM_JWT_TTL: invalid duration %q", v)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("FORUM_JWT_TTL: must be positive, got %s", d)
		}
		cfg.TTL = d
	}
	return cfg, nil
}

// RequireStrong fails unless the secret is at least minBytes long.
// Bytes, not runes: the secret is used as a raw HMAC key.
func (c Config) RequireStrong(minBytes int) error {
	if len(c.Secret) == 0 {
		return ErrSecretMissing
	}
	if minBytes > 0 && len(c.Secret) < minBytes {
		return ErrSecretTooShort
	}
	return nil
}
