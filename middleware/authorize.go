package middleware

import (
	"net/http"

	goVault "github.com/MrEthical07/goVault"
)

// OwnerResolver maps a request to the owning user id of the resource it
// targets. Return nil when the resource has no owner yet; return an error
// when the resource cannot be resolved at all.
type OwnerResolver func(r *http.Request) (*string, error)

// RequireOwnership enforces that the authenticated principal owns the
// targeted resource. Mount inside [RequireAuth]. Resolver errors are 404
// so probing cannot distinguish "missing" from "not yours"; ownership
// mismatches are 403.
func RequireOwnership(engine *goVault.Engine, resolve OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			owner, err := resolve(r)
			if err != nil {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}

			if err := engine.AuthorizeOwnership(r.Context(), principal, owner); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSubscription gates the handler on an active subscription for the
// authenticated principal. Mount inside [RequireAuth]. Denials, including
// lookup failures, are 403.
func RequireSubscription(engine *goVault.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !engine.RequireSubscription(r.Context(), principal.UserID) {
				http.Error(w, "subscription required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
