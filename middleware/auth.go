package middleware

import (
	"context"
	"net/http"
	"strings"

	goVault "github.com/MrEthical07/goVault"
	"github.com/MrEthical07/goVault/ratelimit"
)

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated principal stored by
// [RequireAuth].
func PrincipalFromContext(ctx context.Context) (*goVault.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*goVault.Principal)
	return p, ok
}

// Enrich attaches the client IP, user agent and endpoint to the request
// context so engine calls deeper in the handler chain log and rate-limit
// against the right identity. Mount it outermost.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = goVault.WithClientIP(ctx, ratelimit.ClientIdentifier(r, ""))
		ctx = goVault.WithUserAgent(ctx, r.UserAgent())
		ctx = goVault.WithEndpoint(ctx, r.Method+" "+r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth verifies the Authorization bearer token and injects the
// principal into the request context. Any failure is a bare 401.
func RequireAuth(engine *goVault.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
