// Package bot – sliding-window rate limiter
//
// Per (user, operation) windows of request timestamps, with temporary
// blocking on breach. Windows are process-local and in-memory: they reset on
// restart, a deliberate trade-off. The map is guarded by a mutex because
// updates are handled on real goroutines.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-hadith-bot/internal/config"
)

// Op is an operation category with independently configured limits.
type Op string

const (
	OpSearch   Op = "search"
	OpRandom   Op = "random"
	OpFavorite Op = "favorite"
	OpAdmin    Op = "admin"
	OpCommand  Op = "command"
	OpCallback Op = "callback"
)

var rateRejections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bot_rate_limited_total",
		Help: "Updates rejected by the rate limiter, by operation.",
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(rateRejections)
}

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the caller must wait when rejected.
	RetryAfter time.Duration
}

// window tracks one (user, operation) pair.
type window struct {
	stamps       []time.Time
	blocked      bool
	blockedUntil time.Time
	lastSeen     time.Time
}

// Limiter enforces per-user, per-operation sliding windows.
// Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	cfg config.RateConfig

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewLimiter constructs a Limiter from the configured rules.
func NewLimiter(cfg config.RateConfig) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		cfg:     cfg,
		now:     time.Now,
	}
}

// rule returns the (limit, window) pair for an operation category.
func (l *Limiter) rule(op Op) config.RateRule {
	switch op {
	case OpSearch:
		return l.cfg.Search
	case OpRandom:
		return l.cfg.Random
	case OpFavorite:
		return l.cfg.Favorite
	case OpAdmin:
		return l.cfg.Admin
	case OpCallback:
		return l.cfg.Callback
	default:
		return l.cfg.Command
	}
}

func key(userID int64, op Op) string {
	return fmt.Sprintf("%d:%s", userID, op)
}

// Check records one request attempt for (userID, op) and decides whether it
// may proceed.
//
// Algorithm: a still-active block rejects immediately with the remaining
// time; otherwise stamps older than the window are pruned; if the pruned
// count has reached the limit a new block is set for one window; otherwise
// the attempt is stamped and allowed. Blocks auto-clear on the first check
// after expiry. Administrators get every limit scaled by the configured
// multiplier.
func (l *Limiter) Check(userID int64, op Op, admin bool) Decision {
	r := l.rule(op)
	limit := r.Limit
	if admin {
		limit = int(float64(limit) * l.cfg.AdminMultiplier)
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(userID, op)
	w, ok := l.windows[k]
	if !ok {
		w = &window{}
		l.windows[k] = w
	}
	w.lastSeen = now

	if w.blocked {
		if now.Before(w.blockedUntil) {
			rateRejections.WithLabelValues(string(op)).Inc()
			return Decision{Allowed: false, RetryAfter: w.blockedUntil.Sub(now)}
		}
		w.blocked = false
		w.stamps = w.stamps[:0]
	}

	cutoff := now.Add(-r.Window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= limit {
		w.blocked = true
		w.blockedUntil = now.Add(r.Window)
		rateRejections.WithLabelValues(string(op)).Inc()
		return Decision{Allowed: false, RetryAfter: r.Window}
	}

	w.stamps = append(w.stamps, now)
	return Decision{Allowed: true}
}

// ResetUser clears every window belonging to userID, including blocks.
func (l *Limiter) ResetUser(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, op := range []Op{OpSearch, OpRandom, OpFavorite, OpAdmin, OpCommand, OpCallback} {
		delete(l.windows, key(userID, op))
	}
}

// BlockUser force-blocks every operation for userID for the given duration.
func (l *Limiter) BlockUser(userID int64, d time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, op := range []Op{OpSearch, OpRandom, OpFavorite, OpAdmin, OpCommand, OpCallback} {
		k := key(userID, op)
		w, ok := l.windows[k]
		if !ok {
			w = &window{}
			l.windows[k] = w
		}
		w.blocked = true
		w.blockedUntil = now.Add(d)
		w.lastSeen = now
	}
}

// UnblockUser lifts any active blocks for userID without clearing stamps.
func (l *Limiter) UnblockUser(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, op := range []Op{OpSearch, OpRandom, OpFavorite, OpAdmin, OpCommand, OpCallback} {
		if w, ok := l.windows[key(userID, op)]; ok {
			w.blocked = false
		}
	}
}

// Sweep evicts windows with no recent activity and no active block, to
// bound memory. Meant to run on an independent periodic timer; it holds the
// lock only for the map walk.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0

	l.mu.Lock()
	for k, w := range l.windows {
		if w.blocked && now.Before(w.blockedUntil) {
			continue
		}
		if now.Sub(w.lastSeen) >= l.cfg.IdleTTL {
			delete(l.windows, k)
			removed++
		}
	}
	l.mu.Unlock()

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("rate window sweep")
	}
	return removed
}

// Middleware wraps next with the limiter. Updates without a resolved user
// pass through untouched. Internal limiter panics are recovered and the
// update allowed through (fail-open).
func (l *Limiter) Middleware(transport Transport) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) error {
			if req.User == nil {
				return next(ctx, req)
			}

			op := classifyOp(req.Update)
			var d Decision
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						log.Error().Interface("panic", rec).Msg("rate limiter failure, allowing through")
						d = Decision{Allowed: true}
					}
				}()
				d = l.Check(req.User.ID, op, req.Admin)
			}()

			if d.Allowed {
				return next(ctx, req)
			}

			secs := int(d.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			msg := fmt.Sprintf("⏳ تجاوزت الحد المسموح من الطلبات. حاول مجددًا بعد %d ثانية.", secs)
			if req.Update.Kind == KindCallback {
				if err := transport.AnswerCallback(ctx, req.Update.CallbackID, msg); err != nil {
					log.Warn().Err(err).Msg("rate limit callback answer failed")
				}
				return nil
			}
			if err := transport.SendMessage(ctx, req.Update.ChatID, msg, nil); err != nil {
				log.Warn().Err(err).Msg("rate limit notice send failed")
			}
			return nil
		}
	}
}
