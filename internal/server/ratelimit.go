package server

import (
	"sync"
	"time"

	"github.com/edulink/classchat/internal/types"
)

// OpClass is an admission-control operation class. Limits are configured
// per class and counted per identity, independent of tenant.
type OpClass string

const (
	OpMessage  OpClass = "message"
	OpUpload   OpClass = "upload"
	OpReaction OpClass = "reaction"
	OpGeneric  OpClass = "generic"
)

type LimitConfig struct {
	Ceiling int
	Window  time.Duration
}

// DefaultLimits are the per-class ceilings used when no overrides are
// configured.
func DefaultLimits() map[OpClass]LimitConfig {
	return map[OpClass]LimitConfig{
		OpMessage:  {Ceiling: 30, Window: time.Minute},
		OpUpload:   {Ceiling: 10, Window: time.Minute},
		OpReaction: {Ceiling: 60, Window: time.Minute},
		OpGeneric:  {Ceiling: 120, Window: time.Minute},
	}
}

type CheckResult struct {
	Allowed   bool
	Remaining int
	ResetInMs int64
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window counter pool keyed by identity and
// operation class. Windows reset lazily on the first check after expiry.
// Check never blocks; a denied check returns backoff guidance and the
// caller performs no side effect.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[OpClass]LimitConfig
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter(limits map[OpClass]LimitConfig) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits()
	}

	return &RateLimiter{
		limits:  limits,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Check(identity types.Identity, class OpClass) CheckResult {
	cfg, ok := rl.limits[class]
	if !ok || cfg.Ceiling <= 0 {
		return CheckResult{Allowed: true, Remaining: -1}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	key := identity.UserId + "/" + string(class)

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(cfg.Window)}
		rl.windows[key] = w
	}

	resetInMs := w.resetAt.Sub(now).Milliseconds()
	if w.count >= cfg.Ceiling {
		return CheckResult{Allowed: false, Remaining: 0, ResetInMs: resetInMs}
	}

	w.count++

	return CheckResult{
		Allowed:   true,
		Remaining: cfg.Ceiling - w.count,
		ResetInMs: resetInMs,
	}
}
