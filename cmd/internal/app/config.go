package app

import (
	"fmt"
	"strings"
	"time"

	authapi "github.com/Azuko9/forum-app/cmd/internal/auth/api"
	"github.com/Azuko9/forum-app/cmd/security/password"
	"github.com/Azuko9/forum-app/cmd/security/token"
)

// DB drivers accepted by FORUM_DB_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DBDriver    string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string

	// If true, pending goose migrations are applied at startup (Postgres).
	// SQLite databases are always migrated on open.
	DBAutoMigrate bool

	// If true, /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool

	// If true, the JWT secret must be at least token.MinStrongSecretBytes long.
	RequireStrongSecret bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// AdminEmails are promoted to admin at startup when the accounts exist.
	AdminEmails []string

	Token    token.Config
	Password password.Config
	Auth     authapi.Config
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	tokCfg, err := token.FromEnv()
	if err != nil {
		return Config{}, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:  httpAddrFromEnv(),
		LogLevel:  EnvString("FORUM_LOG_LEVEL", "info"),
		LogFormat: EnvString("FORUM_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("FORUM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FORUM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FORUM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FORUM_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("FORUM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("FORUM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("FORUM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("FORUM_DB_MIN_CONNS", 0),
		SQLitePath:  EnvString("FORUM_SQLITE_PATH", "forum.db"),

		DBAutoMigrate: EnvBool("FORUM_DB_AUTO_MIGRATE", true),

		ReadinessRequireDB:  EnvBool("FORUM_READINESS_REQUIRE_DB", false),
		RequireStrongSecret: EnvBool("FORUM_REQUIRE_STRONG_SECRET", false),

		CORSAllowedOrigins:   EnvList("FORUM_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("FORUM_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("FORUM_CORS_MAX_AGE_SECONDS", 600),

		AdminEmails: EnvList("FORUM_ADMIN_EMAILS"),

		Token:    tokCfg,
		Password: pwCfg,
		Auth:     authapi.LoadConfigFromEnv(),
	}

	driver, err := resolveDriver(EnvString("FORUM_DB_DRIVER", ""), cfg.DatabaseURL)
	if err != nil {
		return Config{}, err
	}
	cfg.DBDriver = driver
	return cfg, nil
}

// httpAddrFromEnv prefers FORUM_HTTP_ADDR, then PORT on all interfaces.
func httpAddrFromEnv() string {
	if addr := EnvString("FORUM_HTTP_ADDR", ""); addr != "" {
		return addr
	}
	if port := EnvString("PORT", ""); port != "" {
		return "0.0.0.0:" + port
	}
	return "0.0.0.0:5000"
}

// resolveDriver defaults to postgres when a URL is set and memory otherwise.
func resolveDriver(raw, databaseURL string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(raw)); d {
	case "":
		if databaseURL != "" {
			return DriverPostgres, nil
		}
		return DriverMemory, nil
	case DriverMemory, DriverSQLite:
		return d, nil
	case DriverPostgres, "postgresql", "pgx":
		if databaseURL == "" {
			return "", fmt.Errorf("FORUM_DB_DRIVER=%s requires FORUM_DATABASE_URL", d)
		}
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("FORUM_DB_DRIVER: unsupported driver %q", raw)
	}
}
