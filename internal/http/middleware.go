package http

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/logging"
)

// Identity headers set by the upstream gateway after it authenticates the
// caller.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"

	roleAdmin = "admin"
)

// RequireIdentity builds the caller's principal from the gateway headers and
// rejects requests that carry none.
func RequireIdentity(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
				return
			}

			principal := application.Principal{
				UserID:  userID,
				Email:   strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
				IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), roleAdmin),
			}
			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// limiterIdleTTL is how long a client's bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

// ClientRateLimiter keeps one token bucket per client address. Buckets of
// clients that stay idle for limiterIdleTTL are evicted.
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

// NewClientRateLimiter allows limit requests per second per client with the
// given burst.
func NewClientRateLimiter(limit rate.Limit, burst int) *ClientRateLimiter {
	return newClientRateLimiter(limit, burst, limiterIdleTTL)
}

func newClientRateLimiter(limit rate.Limit, burst int, idle time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: cache.New(idle, idle/2),
		limit:    limit,
		burst:    burst,
	}
}

// Limiter returns the bucket of client, creating it on first use. Every call
// restarts the bucket's idle timer.
func (l *ClientRateLimiter) Limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.cachedLimiter(client)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	l.limiters.SetDefault(client, limiter)
	return limiter
}

func (l *ClientRateLimiter) cachedLimiter(client string) (*rate.Limiter, bool) {
	v, found := l.limiters.Get(client)
	if !found {
		return nil, false
	}
	limiter, ok := v.(*rate.Limiter)
	return limiter, ok
}

// Clients reports how many buckets are currently held.
func (l *ClientRateLimiter) Clients() int {
	return l.limiters.ItemCount()
}

// RateLimit answers 429 once a client exhausts its bucket. A nil limiter
// disables the check.
func RateLimit(limiter *ClientRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Limiter(clientAddress(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				responder.writeError(r.Context(), w, http.StatusTooManyRequests, errTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress keys rate limiting on the socket peer. Forwarding headers are
// ignored because any caller can set them.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
