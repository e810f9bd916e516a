// Package ratelimit enforces named fixed-window request limits backed by
// Redis counters. Limiters compose: a request can be checked against a
// broad "general" limiter and a narrower per-endpoint limiter in one call,
// and the caller always sees the most restrictive remaining quota and the
// latest reset time.
package ratelimit
