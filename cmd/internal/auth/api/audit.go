package authapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// auditMetrics counts auth events by action.
type auditMetrics struct {
	events *prometheus.CounterVec
}

func newAuditMetrics(reg prometheus.Registerer) (*auditMetrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forum",
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Auth events by action.",
	}, []string{"action"})

	if reg == nil {
		return &auditMetrics{events: events}, nil
	}
	if err := reg.Register(events); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		events = existing
	}
	return &auditMetrics{events: events}, nil
}

func (h *Handler) auditSignup(ctx context.Context, userID, ip, ua string) {
	h.insertAudit(ctx, "auth.signup", userID, ip, ua, nil)
}

func (h *Handler) auditSignupConflict(ctx context.Context, field, ip, ua string) {
	h.insertAudit(ctx, "auth.signup.conflict", "", ip, ua, map[string]any{"field": field})
}

func (h *Handler) auditLoginFailed(ctx context.Context, ip, ua, identifier, reason string) {
	h.insertAudit(ctx, "auth.login.failed", "", ip, ua, map[string]any{
		"identifier": identifier,
		"reason":     reason,
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID, ip, ua, identifier string) {
	h.insertAudit(ctx, "auth.login.success", userID, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip, ua, identifier string, retryAfter time.Duration) {
	h.insertAudit(ctx, "auth.login.rate_limited", "", ip, ua, map[string]any{
		"identifier":    identifier,
		"retry_after_s": int64(retryAfter.Seconds()),
	})
}

func (h *Handler) auditPasswordChanged(ctx context.Context, userID, ip, ua string) {
	h.insertAudit(ctx, "auth.password.changed", userID, ip, ua, nil)
}

func (h *Handler) auditRoleChanged(ctx context.Context, actorID, targetID, role, ip, ua string) {
	h.insertAudit(ctx, "auth.role.changed", actorID, ip, ua, map[string]any{
		"target_id": targetID,
		"role":      role,
	})
}

// insertAudit emits one structured audit record and bumps the event counter.
func (h *Handler) insertAudit(ctx context.Context, action, userID, ip, ua string, meta map[string]any) {
	if h == nil {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	if h.metrics != nil {
		h.metrics.events.WithLabelValues(action).Inc()
	}

	attrs := make([]slog.Attr, 0, 4+len(meta))
	attrs = append(attrs, slog.String("action", action))
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if ip != "" {
		attrs = append(attrs, slog.String("ip", ip))
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}
	for k, v := range meta {
		attrs = append(attrs, slog.Any(k, v))
	}
	h.log.LogAttrs(ctx, slog.LevelInfo, "auth.audit", attrs...)
}
