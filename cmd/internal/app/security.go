package app

import (
	"errors"
	"fmt"

	"github.com/Azuko9/forum-app/cmd/security/token"
)

// ValidateSecurityConfig enforces the signing-secret policy at startup.
// A missing secret is always fatal; a short one only when
// FORUM_REQUIRE_STRONG_SECRET is set.
func ValidateSecurityConfig(cfg Config) error {
	minBytes := 0
	if cfg.RequireStrongSecret {
		minBytes = token.MinStrongSecretBytes
	}

	if err := cfg.Token.RequireStrong(minBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return fmt.Errorf("security policy: %s is missing", token.SecretEnvKey)
		case errors.Is(err, token.ErrSecretTooShort):
			return fmt.Errorf("security policy: FORUM_REQUIRE_STRONG_SECRET=true but %s is too short (min %d bytes)",
				token.SecretEnvKey, token.MinStrongSecretBytes)
		default:
			return err
		}
	}
	return nil
}
