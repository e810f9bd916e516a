package goVault

import (
	"testing"
	"time"
)

func TestProductionConfigRequiresSecrets(t *testing.T) {
	cfg := ProductionConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("production preset without secrets must not validate")
	}

	cfg.Crypto.MasterKey = testMasterKey
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing signing secret must not validate")
	}

	cfg.Token.SigningSecret = "prod-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete production config rejected: %v", err)
	}
}

func TestDevConfigValidatesWithoutSecrets(t *testing.T) {
	if err := DevConfig().Validate(); err != nil {
		t.Fatalf("dev preset rejected: %v", err)
	}
}

func TestValidateRejectsBadDigits(t *testing.T) {
	cfg := DevConfig()
	cfg.TOTP.Digits = 7
	if err := cfg.Validate(); err == nil {
		t.Fatal("7-digit TOTP must not validate")
	}
}

func TestValidateRejectsNegativeTOTPTunables(t *testing.T) {
	cfg := DevConfig()
	cfg.TOTP.Period = -30
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative TOTP period must not validate")
	}

	cfg = DevConfig()
	cfg.TOTP.Skew = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative TOTP skew must not validate")
	}
}

func TestAttemptWindowClamp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 15 * time.Minute},
		{-time.Hour, 15 * time.Minute},
		{time.Second, time.Minute},
		{15 * time.Minute, 15 * time.Minute},
		{48 * time.Hour, 1440 * time.Minute},
	}
	for _, tc := range cases {
		cfg := Config{TwoFactor: TwoFactorConfig{AttemptWindow: tc.in}}
		if got := cfg.attemptWindow(); got != tc.want {
			t.Fatalf("attemptWindow(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBuilderRequiresProvider(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("build without provider must fail")
	}
}

func TestBuilderRequiresRedisForRateLimiting(t *testing.T) {
	cfg := testConfig()
	if !cfg.RateLimit.Enabled {
		t.Fatal("test config expected to enable rate limiting")
	}
	if _, err := New().WithConfig(cfg).WithUserProvider(newFakeProvider()).Build(); err == nil {
		t.Fatal("rate limiting without redis must fail")
	}

	cfg.RateLimit.Enabled = false
	engine, err := New().WithConfig(cfg).WithUserProvider(newFakeProvider()).Build()
	if err != nil {
		t.Fatalf("build without redis and without rate limiting failed: %v", err)
	}
	engine.Close()
}

func TestBuilderSingleUse(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = false

	b := New().WithConfig(cfg).WithUserProvider(newFakeProvider())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("second build on the same builder must fail")
	}
}
