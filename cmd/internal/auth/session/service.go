package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azuko9/forum-app/cmd/identity"
	"github.com/Azuko9/forum-app/cmd/internal/httpx"
	"github.com/Azuko9/forum-app/cmd/security/token"
)

// Verifier is the token primitive the Guard depends on.
type Verifier interface {
	Verify(raw string) (token.Claims, error)
}

// Outcome labels a Guard or Role Gate decision for observers.
type Outcome string

const (
	OutcomeAllowed     Outcome = "allowed"
	OutcomeMissing     Outcome = "missing_token"
	OutcomeInvalid     Outcome = "invalid_token"
	OutcomeRoleDenied  Outcome = "role_denied"
	OutcomeNoPrincipal Outcome = "no_principal"
)

const headerAuthorization = "Authorization"

// Guard is the Identity Guard: it turns a bearer token into a Principal.
type Guard struct {
	tokens  Verifier
	log     *slog.Logger
	observe func(Outcome)
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithObserver receives every Guard and Role Gate outcome (used for metrics).
func WithObserver(fn func(Outcome)) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.observe = fn
		}
	}
}

// NewGuard constructs a Guard. A nil logger discards output.
func NewGuard(tokens Verifier, log *slog.Logger, opts ...GuardOption) *Guard {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	g := &Guard{
		tokens:  tokens,
		log:     log,
		observe: func(Outcome) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ExtractToken returns the candidate token from an Authorization header
// value. A credential is present only when the value splits into exactly two
// whitespace-separated fields; the scheme is not inspected.
func ExtractToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return "", false
	}
	return fields[1], true
}

// Authenticate resolves the request's principal.
// It returns ErrUnauthenticated or an error wrapping ErrForbidden.
func (g *Guard) Authenticate(r *http.Request) (identity.Principal, error) {
	raw, ok := ExtractToken(r.Header.Get(headerAuthorization))
	if !ok {
		return identity.Principal{}, ErrUnauthenticated
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		return identity.Principal{}, errors.Join(ErrForbidden, err)
	}

	return identity.Principal{
		ID:       claims.ID,
		Username: claims.Username,
		Role:     identity.RoleOrDefault(claims.Role),
	}, nil
}

// Require runs next only for authenticated requests, with the principal
// attached to the request context.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Authenticate(r)
		switch {
		case errors.Is(err, ErrUnauthenticated):
			g.observe(OutcomeMissing)
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "no token provided")
			return
		case err != nil:
			g.observe(OutcomeInvalid)
			g.log.Info("auth.guard.reject", "path", r.URL.Path, "err", err)
			httpx.WriteError(w, http.StatusForbidden, "invalid_token", "invalid or expired token")
			return
		}

		g.observe(OutcomeAllowed)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireFunc is Require for a HandlerFunc.
func (g *Guard) RequireFunc(next http.HandlerFunc) http.Handler {
	return g.Require(next)
}

// RequireRoles is the Role Gate. It must run after Require.
func (g *Guard) RequireRoles(allowed ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			switch err := CheckRole(p, ok, allowed...); {
			case errors.Is(err, ErrUnauthenticated):
				g.observe(OutcomeNoPrincipal)
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "not authenticated")
				return
			case err != nil:
				g.observe(OutcomeRoleDenied)
				g.log.Info("auth.role.denied", "path", r.URL.Path, "user_id", p.ID, "role", string(p.Role))
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckRole is the pure Role Gate decision. ok reports whether a principal
// was present at all.
func CheckRole(p identity.Principal, ok bool, allowed ...identity.Role) error {
	if !ok {
		return ErrUnauthenticated
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
