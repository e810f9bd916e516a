// Package postgres is a pgx-backed [goVault.UserProvider], [goVault.Sink]
// and [goVault.SecurityEventStore]. Every query is parameterized; no SQL
// is ever assembled from request values.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    email_encrypted  TEXT NOT NULL,
//	    email_hash       TEXT NOT NULL UNIQUE,
//	    name_encrypted   TEXT,
//	    phone_encrypted  TEXT,
//	    password_hash    TEXT NOT NULL,
//	    email_verified   BOOLEAN NOT NULL DEFAULT FALSE,
//	    totp_secret      TEXT,
//	    totp_enabled_at  TIMESTAMPTZ,
//	    totp_last_used   TIMESTAMPTZ,
//	    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    deleted_at       TIMESTAMPTZ
//	);
//
//	CREATE TABLE email_verifications (
//	    token_hash  BYTEA PRIMARY KEY,
//	    user_id     UUID NOT NULL REFERENCES users(id),
//	    expires_at  TIMESTAMPTZ NOT NULL,
//	    used_at     TIMESTAMPTZ,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE backup_codes (
//	    user_id     UUID NOT NULL REFERENCES users(id),
//	    code_hash   BYTEA NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    expires_at  TIMESTAMPTZ,
//	    used_at     TIMESTAMPTZ,
//	    PRIMARY KEY (user_id, code_hash)
//	);
//
//	CREATE TABLE two_factor_attempts (
//	    id           BIGSERIAL PRIMARY KEY,
//	    user_id      UUID NOT NULL,
//	    ip_address   TEXT,
//	    user_agent   TEXT,
//	    success      BOOLEAN NOT NULL,
//	    code_type    TEXT NOT NULL,
//	    attempted_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE subscriptions (
//	    user_id     UUID PRIMARY KEY REFERENCES users(id),
//	    status      TEXT NOT NULL,
//	    expires_at  TIMESTAMPTZ
//	);
//
//	CREATE TABLE security_events (
//	    id          BIGSERIAL PRIMARY KEY,
//	    event_type  TEXT NOT NULL,
//	    severity    TEXT NOT NULL,
//	    user_id     TEXT,
//	    ip_address  TEXT,
//	    endpoint    TEXT,
//	    details     TEXT,
//	    metadata    JSONB,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE audit_logs (
//	    id          BIGSERIAL PRIMARY KEY,
//	    table_name  TEXT NOT NULL,
//	    record_id   TEXT NOT NULL,
//	    action      TEXT NOT NULL,
//	    old_values  TEXT,
//	    new_values  TEXT,
//	    user_id     TEXT,
//	    ip_address  TEXT,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
package postgres
