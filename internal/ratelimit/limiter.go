// Package ratelimit throttles credential endpoints per client address. It is
// deliberately separate from the revocation store so either can move to its
// own cache.
package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	"github.com/carecoord/authcore/internal/platform/httpx"
	"github.com/carecoord/authcore/internal/shared"
)

// KeyPrefix namespaces counters in the shared cache.
const KeyPrefix = "ratelimit"

// Rule is one endpoint's budget.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Limiter builds rate-limiting middleware. A nil client keeps counters in
// process memory.
type Limiter struct {
	client  redis.UniversalClient
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs a Limiter.
func New(client redis.UniversalClient, timeout time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{client: client, timeout: timeout, logger: logger}
}

// Handler limits requests per client address according to rule. A rule
// without a positive limit disables limiting.
func (l *Limiter) Handler(rule Rule) func(http.Handler) http.Handler {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	opts := []httprate.Option{
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			l.logger.Warn("rate limit exceeded",
				slog.String("rule", rule.Name),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			httpx.RateLimited(w, r, rule.Window)
		}),
		httprate.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			httpx.RespondError(w, r, l.logger, shared.Unavailable(err))
		}),
	}
	if l.client != nil {
		opts = append(opts, httprate.WithLimitCounter(NewRedisCounter(l.client, KeyPrefix+":"+rule.Name, l.timeout)))
	}
	return httprate.Limit(rule.Limit, rule.Window, opts...)
}
