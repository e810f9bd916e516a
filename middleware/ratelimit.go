package middleware

import (
	"net/http"
	"strconv"
	"time"

	goVault "github.com/MrEthical07/goVault"
	"github.com/MrEthical07/goVault/ratelimit"
)

// RateLimit enforces the named limiters for each request. The identifier
// is the client IP (authenticated user id as fallback). Denials answer
// 429 with Retry-After; every response carries the remaining quota.
// Limiter backend failures fail closed with 503.
func RateLimit(engine *goVault.Engine, limiters ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || len(limiters) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			var userID string
			if principal, ok := PrincipalFromContext(r.Context()); ok {
				userID = principal.UserID
			}
			identifier := ratelimit.ClientIdentifier(r, userID)

			res, err := engine.CheckRateLimit(r.Context(), limiters, identifier)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}

			if !res.Allowed {
				retry := time.Until(res.ResetAt).Seconds()
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
