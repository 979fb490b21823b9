package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"digicop-backend/internal/metrics"
	"digicop-backend/utils/response"
)

const LimitedMessage = "Too many requests, please try again later."

type Middleware struct {
	limiter    Limiter
	trustProxy bool
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewMiddleware(limiter Limiter, trustProxy bool, log *zap.SugaredLogger) *Middleware {
	return &Middleware{limiter: limiter, trustProxy: trustProxy, log: log, now: time.Now}
}

// Limit rejects requests over the quota with 429. If the limiter itself
// fails the request is let through.
func (m *Middleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := m.limiter.Allow(r.Context(), ClientIP(r, m.trustProxy))
		if err != nil {
			m.log.With("err", err).Warn("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		reset := int64(math.Ceil(res.ResetAt.Sub(m.now()).Seconds()))
		if reset < 0 {
			reset = 0
		}
		w.Header().Set("RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		w.Header().Set("RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		w.Header().Set("RateLimit-Reset", strconv.FormatInt(reset, 10))

		if !res.Allowed {
			metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", strconv.FormatInt(reset, 10))
			response.Error(w, http.StatusTooManyRequests, LimitedMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the address used as the rate-limit key. With trustProxy the
// first X-Forwarded-For hop wins.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
