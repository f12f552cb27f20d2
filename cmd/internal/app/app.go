// Package app wires the forum server runtime: config, logging, storage,
// HTTP routes and the server lifecycle.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Azuko9/forum-app/cmd/identity"
	authapi "github.com/Azuko9/forum-app/cmd/internal/auth/api"
	"github.com/Azuko9/forum-app/cmd/internal/auth/session"
	"github.com/Azuko9/forum-app/cmd/internal/forum"
	"github.com/Azuko9/forum-app/cmd/security/token"

	"golang.org/x/sync/errgroup"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// App owns the HTTP server and the resources behind it.
type App struct {
	cfg Config
	log Logger

	store  Store
	driver string

	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	handler, err := buildHandler(ctx, cfg, log, be)
	if err != nil {
		_ = be.Close(ctx)
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		store:   be,
		driver:  be.driver,
		handler: handler,
	}, nil
}

// buildHandler assembles services, routes and the middleware chain.
func buildHandler(ctx context.Context, cfg Config, log Logger, be *backend) (http.Handler, error) {
	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewService(cfg.Token)
	if err != nil {
		return nil, err
	}
	guard := session.NewGuard(tokens, log.With("component", "auth.guard"), session.WithObserver(metrics.ObserveGuard))

	accounts, err := identity.NewService(be.users, cfg.Password)
	if err != nil {
		return nil, err
	}
	if len(cfg.AdminEmails) > 0 {
		n, err := accounts.BootstrapAdmins(ctx, cfg.AdminEmails)
		if err != nil {
			return nil, err
		}
		log.Info("auth.admin.bootstrap", "configured", len(cfg.AdminEmails), "promoted", n)
	}

	authHandler, err := authapi.NewHandler(log.With("component", "auth"), cfg.Auth, accounts, tokens, guard,
		authapi.WithRegisterer(metrics.Registry()))
	if err != nil {
		return nil, err
	}

	forumSvc, err := forum.NewService(be.topics, be.users)
	if err != nil {
		return nil, err
	}
	forumHandler, err := forum.NewHandler(log.With("component", "forum"), forumSvc, guard, cfg.Auth.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, be, metrics, authHandler, forumHandler)

	// Outermost first: request id, logging, CORS, headers, metrics, mux.
	var h http.Handler = metrics.WithMetrics(mux)
	h = WithSecurityHeaders(h)
	h = WithCORS(h, cfg, log)
	h = WithRequestLogging(h, log)
	h = WithRequestID(h)
	return h, nil
}

// Handler exposes the assembled handler chain (used by tests and tools).
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", runtimeBaseURL(a.cfg.HTTPAddr),
		"db_driver", a.driver,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		if err := a.store.Close(shutdownCtx); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
