package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"fedbox/pkg/auth"
	"fedbox/pkg/common"
)

// RateLimit throttles mutating requests per remote host. Reads pass
// through unthrottled.
func RateLimit(limiter *auth.RemoteHostLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			allowed, err := limiter.Allow(r.Context(), host)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn("rate limit exceeded", zap.String("host", host))
				w.Header().Set("Retry-After", "60")
				common.RespondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorRateLimit throttles authenticated submissions per actor, so
// one busy client cannot starve the rest of the instance.
func ActorRateLimit(limiter *auth.ActorRateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := common.GetActor(r.Context())
			if !ok || !common.IsAuthenticated(r.Context()) || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := limiter.Allow(r.Context(), actor)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn("actor rate limit exceeded", zap.String("actor", actor))
				w.Header().Set("Retry-After", "60")
				common.RespondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
