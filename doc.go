// Package goVault is the authentication and data-protection engine for a
// multi-tenant web application: signed session token pairs, field-level
// encryption of PII at rest, TOTP two-factor authentication with
// backup-code recovery, and the rate-limiting and security-logging
// controls gating all of it.
//
// The engine is an embeddable library. Callers implement [UserProvider]
// against their relational store (a pgx-backed implementation ships in the
// postgres subpackage), optionally wire an [EmailSender], a Redis client
// for rate limiting and login challenges, and a [Sink] for security
// events, then construct the engine with [New]:
//
//	engine, err := goVault.New().
//		WithConfig(goVault.ProductionConfig()).
//		WithUserProvider(provider).
//		WithRedis(redisClient).
//		WithEmailSender(mailer).
//		Build()
//
// Request flow: rate limiter, then access-token verification, then
// ownership/subscription authorization, then the business handler; the
// two-factor engine sits inside login between password verification and
// token issuance. Every denial emits a security event.
package goVault
