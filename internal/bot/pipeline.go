// Package bot – pipeline orchestrator
//
// Fixed middleware order per update: instrumentation → session gate → rate
// limiter → feature dispatch, with the error responder wrapping the entire
// chain. Dispatch is a pure lookup; no business logic lives here.
package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Handler processes one update after the pipeline middlewares have run.
type Handler func(ctx context.Context, req *Request) error

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(Handler) Handler

var (
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Inbound updates by kind.",
		},
		[]string{"kind"},
	)
	updateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_update_duration_seconds",
			Help:    "Update handling duration by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(updatesTotal, updateDuration)
}

// showCommandRE matches the dynamic "show item by id" command, e.g.
// "/hadith_3f8a1c2e" or "/hadith_3f8a1c2e-…" (identifier suffix).
var showCommandRE = regexp.MustCompile(`^/hadith_([A-Za-z0-9-]+)$`)

// route is one dispatch target.
type route struct {
	op      Op
	name    string
	handler Handler
}

// Router maps commands, callback data, and free text to handlers.
// Register everything at construction; lookups are read-only afterwards.
type Router struct {
	commands       map[string]route
	callbackExact  map[string]route
	callbackPrefix []struct {
		prefix string
		r      route
	}
	textRoute route // freeform non-slash text
	showRoute route // dynamic /hadith_<id>
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		commands:      map[string]route{},
		callbackExact: map[string]route{},
	}
}

// Command registers a slash command by bare name (without the slash).
func (r *Router) Command(name string, op Op, h Handler) {
	r.commands["/"+name] = route{op: op, name: "cmd:" + name, handler: h}
}

// Callback registers an exact callback-data value.
func (r *Router) Callback(data string, op Op, h Handler) {
	r.callbackExact[data] = route{op: op, name: "cb:" + data, handler: h}
}

// CallbackPrefix registers a callback-data prefix match.
func (r *Router) CallbackPrefix(prefix string, op Op, h Handler) {
	r.callbackPrefix = append(r.callbackPrefix, struct {
		prefix string
		r      route
	}{prefix, route{op: op, name: "cb:" + prefix + "*", handler: h}})
}

// Text registers the handler for freeform non-slash text (treated as a
// search query).
func (r *Router) Text(h Handler) {
	r.textRoute = route{op: OpSearch, name: "text", handler: h}
}

// Show registers the handler for the dynamic /hadith_<id> command.
func (r *Router) Show(h Handler) {
	r.showRoute = route{op: OpCommand, name: "cmd:hadith_id", handler: h}
}

// resolve returns the route for an update, or ok=false when nothing
// matches (e.g. a membership event).
func (r *Router) resolve(u Update) (route, bool) {
	switch u.Kind {
	case KindCallback:
		if rt, ok := r.callbackExact[u.CallbackData]; ok {
			return rt, true
		}
		for _, p := range r.callbackPrefix {
			if strings.HasPrefix(u.CallbackData, p.prefix) {
				return p.r, true
			}
		}
		return route{}, false
	case KindMessage:
		text := strings.TrimSpace(u.Text)
		if text == "" {
			return route{}, false
		}
		if strings.HasPrefix(text, "/") {
			cmd := strings.Fields(text)[0]
			// Strip the "@botname" suffix used in group chats.
			if i := strings.IndexByte(cmd, '@'); i > 0 {
				cmd = cmd[:i]
			}
			if showCommandRE.MatchString(cmd) && r.showRoute.handler != nil {
				return r.showRoute, true
			}
			if rt, ok := r.commands[cmd]; ok {
				return rt, true
			}
			return route{}, false
		}
		if r.textRoute.handler != nil {
			return r.textRoute, true
		}
		return route{}, false
	default:
		return route{}, false
	}
}

// classifyOp derives the rate-limit category from the update shape; used by
// the limiter middleware before dispatch resolves a concrete route.
func classifyOp(u Update) Op {
	switch u.Kind {
	case KindCallback:
		switch {
		case strings.HasPrefix(u.CallbackData, "fav:"):
			return OpFavorite
		case strings.HasPrefix(u.CallbackData, "admin:"):
			return OpAdmin
		case u.CallbackData == "random":
			return OpRandom
		case strings.HasPrefix(u.CallbackData, "retry:"), strings.HasPrefix(u.CallbackData, "search:"):
			return OpSearch
		default:
			return OpCallback
		}
	case KindMessage:
		text := strings.TrimSpace(u.Text)
		if !strings.HasPrefix(text, "/") {
			// Free text is a search operation.
			return OpSearch
		}
		cmd := strings.Fields(text)[0]
		if i := strings.IndexByte(cmd, '@'); i > 0 {
			cmd = cmd[:i]
		}
		switch cmd {
		case "/search":
			return OpSearch
		case "/random":
			return OpRandom
		case "/favorites":
			return OpFavorite
		case "/admin":
			return OpAdmin
		default:
			return OpCommand
		}
	default:
		return OpCommand
	}
}

// Pipeline composes the middleware chain around every inbound update.
type Pipeline struct {
	gate      *Gate
	limiter   *Limiter
	router    *Router
	responder *Responder
	transport Transport

	// slow is the duration beyond which handling is logged as slow.
	slow time.Duration
}

// NewPipeline wires the orchestrator. The middleware order is fixed and not
// configurable.
func NewPipeline(gate *Gate, limiter *Limiter, router *Router, responder *Responder, transport Transport, slow time.Duration) *Pipeline {
	return &Pipeline{
		gate:      gate,
		limiter:   limiter,
		router:    router,
		responder: responder,
		transport: transport,
		slow:      slow,
	}
}

// HandleUpdate runs one update through the full chain. It never returns an
// error: every failure ends at the responder (or, for responder-internal
// failures, at the log sink). Safe to call concurrently.
//
// Route resolution happens inside the chain, after the gate and limiter:
// session bookkeeping (blocked notice, profile refresh, activity) applies to
// every update carrying a sender, routed or not. Unrouted updates are then
// dropped silently.
func (p *Pipeline) HandleUpdate(ctx context.Context, u Update) {
	updatesTotal.WithLabelValues(kindLabel(u.Kind)).Inc()
	req := &Request{Update: u}
	op := classifyOp(u)

	opName := "unrouted"
	dispatch := func(ctx context.Context, req *Request) error {
		rt, ok := p.router.resolve(req.Update)
		if !ok {
			log.Debug().Int64("update_id", u.ID).Str("kind", kindLabel(u.Kind)).Msg("no route for update")
			return nil
		}
		opName = rt.name
		return rt.handler(ctx, req)
	}
	chain := p.gate.Middleware(p.limiter.Middleware(p.transport)(dispatch))

	start := time.Now()
	err := p.run(ctx, chain, req)
	elapsed := time.Since(start)
	updateDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	if elapsed > p.slow {
		log.Warn().
			Str("op", opName).
			Dur("elapsed", elapsed).
			Int64("update_id", u.ID).
			Msg("slow update")
	}

	if err != nil {
		p.responder.Respond(ctx, req, opName, err)
	}
}

// run executes the chain, converting panics into ordinary errors so they
// reach the responder like any other failure.
func (p *Pipeline) run(ctx context.Context, chain Handler, req *Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return chain(ctx, req)
}

func kindLabel(k UpdateKind) string {
	switch k {
	case KindMessage:
		return "message"
	case KindCallback:
		return "callback"
	case KindMemberEvent:
		return "member"
	default:
		return "other"
	}
}
