/**
 * @description
 * Custom middleware for the HTTP router: internal API key protection for
 * the scheduler hook and Redis-backed rate limiting on paid mutations.
 */
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/adverto/listing-service/internal/app"
)

// InternalAuthMiddleware guards internal routes with a shared API key.
// An empty configured key disables the check (local mode).
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && r.Header.Get("X-Internal-API-Key") != apiKey {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware limits requests per user within a fixed window for
// one scope. A nil limiter disables limiting.
func RateLimitMiddleware(limiter *app.RedisRateLimiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := r.Header.Get("X-User-ID")
			if subject == "" {
				subject = r.RemoteAddr
			}

			_, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, subject, limit, window)
			if err != nil {
				// Limiter trouble must not take the endpoint down.
				next.ServeHTTP(w, r)
				return
			}
			if retryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
