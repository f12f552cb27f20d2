package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Azuko9/forum-app/cmd/internal/httpx"
)

// sweepThreshold bounds how many keys a failureLog holds before a full prune.
const sweepThreshold = 10_000

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// failureLog is a keyed sliding window of failed login timestamps.
type failureLog struct {
	mu     sync.Mutex
	byKey  map[string][]time.Time
	window time.Duration
}

func newFailureLog(window time.Duration) *failureLog {
	return &failureLog{byKey: make(map[string][]time.Time), window: window}
}

// recent returns the pruned failures for key.
func (l *failureLog) recent(key string, now time.Time) []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.pruneLocked(key, now)
	return append([]time.Time(nil), kept...)
}

func (l *failureLog) record(key string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.byKey) >= sweepThreshold {
		for k := range l.byKey {
			l.pruneLocked(k, now)
		}
	}
	l.byKey[key] = append(l.pruneLocked(key, now), now)
}

func (l *failureLog) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byKey, key)
}

func (l *failureLog) pruneLocked(key string, now time.Time) []time.Time {
	events := l.byKey[key]
	cut := now.Add(-l.window)
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	if len(dst) == 0 {
		delete(l.byKey, key)
		return nil
	}
	l.byKey[key] = dst
	return dst
}

// loginThrottle blocks login attempts per client IP (sliding window) and per
// email (progressive lockout). Only failures are counted.
type loginThrottle struct {
	cfg    Config
	tiers  []lockoutTier
	byIP   *failureLog
	byUser *failureLog
}

func newLoginThrottle(cfg Config) *loginThrottle {
	return &loginThrottle{
		cfg:    cfg,
		tiers:  cfg.lockoutTiers(),
		byIP:   newFailureLog(cfg.LoginIPWindow),
		byUser: newFailureLog(cfg.LoginUserWindow),
	}
}

// check reports whether a login for (ip, identifier) must be refused now.
func (t *loginThrottle) check(ip, identifier string, now time.Time) (bool, time.Duration) {
	if ip != "" && t.cfg.LoginIPMax > 0 {
		if blocked, retry := evaluateWindowThrottle(now, t.byIP.recent(ip, now), t.cfg.LoginIPMax, t.cfg.LoginIPWindow); blocked {
			return true, retry
		}
	}
	if identifier != "" {
		if blocked, retry := evaluateProgressiveLockout(now, t.byUser.recent(lockoutKey(ip, identifier), now), t.tiers); blocked {
			return true, retry
		}
	}
	return false, 0
}

func (t *loginThrottle) fail(ip, identifier string, now time.Time) {
	if ip != "" {
		t.byIP.record(ip, now)
	}
	if identifier != "" {
		t.byUser.record(lockoutKey(ip, identifier), now)
	}
}

// succeed clears the lockout history of (ip, identifier). IP history is kept.
func (t *loginThrottle) succeed(ip, identifier string) {
	if identifier != "" {
		t.byUser.reset(lockoutKey(ip, identifier))
	}
}

// lockoutKey scopes the progressive lockout to one client address, so
// failures from one IP cannot lock the account out for everyone else.
// Guessing across many addresses is still bounded by the per-IP window.
func lockoutKey(ip, identifier string) string {
	if ip == "" {
		return identifier
	}
	return identifier + "|" + ip
}

// evaluateWindowThrottle blocks once limit failures fall inside window. The
// retry delay is the time until the oldest of them leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)

	var oldest time.Time
	n := 0
	for _, f := range failures {
		if !f.After(cut) {
			continue
		}
		if n == 0 || f.Before(oldest) {
			oldest = f
		}
		n++
	}
	if n < limit {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout applies tiers ordered from most to least severe.
// A tier locks until its duration has passed since the latest failure.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	latest := failures[0]
	for _, f := range failures[1:] {
		if f.After(latest) {
			latest = f
		}
	}

	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		until := latest.Add(tier.Duration)
		if until.After(now) {
			return true, until.Sub(now)
		}
	}
	return false, 0
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
