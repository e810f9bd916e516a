// Package middleware exposes net/http adapters over the engine's
// authorization surface.
//
//   - [Enrich] attaches client IP, user agent and endpoint to the context.
//   - [RequireAuth] performs bearer-token authentication and puts the
//     principal into the context.
//   - [RequireOwnership] enforces per-resource ownership.
//   - [RequireSubscription] gates on an active subscription.
//   - [RateLimit] enforces named limiters with standard headers.
//
// The package translates HTTP semantics into engine calls and nothing
// more: every decision is delegated to the engine, and rejection bodies
// never say why a request was denied.
package middleware
