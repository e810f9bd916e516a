package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	goVault "github.com/MrEthical07/goVault"
	"github.com/MrEthical07/goVault/ratelimit"
	"github.com/MrEthical07/goVault/token"
)

// stubProvider satisfies goVault.UserProvider with just enough behavior
// for middleware tests: everything flows through the engine's token and
// limiter layers, not persistence.
type stubProvider struct {
	subscribed map[string]bool
}

func (s *stubProvider) GetUserByID(context.Context, string) (goVault.UserRecord, error) {
	return goVault.UserRecord{}, goVault.ErrUserNotFound
}

func (s *stubProvider) GetUserByEmailHash(context.Context, string) (goVault.UserRecord, error) {
	return goVault.UserRecord{}, goVault.ErrUserNotFound
}

func (s *stubProvider) CreateUser(context.Context, goVault.CreateUserInput) (goVault.UserRecord, error) {
	return goVault.UserRecord{}, errors.New("not implemented")
}

func (s *stubProvider) SoftDeleteUser(context.Context, string, time.Time) error { return nil }
func (s *stubProvider) MarkEmailVerified(context.Context, string) error         { return nil }

func (s *stubProvider) CreateEmailVerification(context.Context, string, [32]byte, time.Time) error {
	return nil
}

func (s *stubProvider) ConsumeEmailVerification(context.Context, [32]byte) (string, bool, error) {
	return "", false, nil
}

func (s *stubProvider) EnableTwoFactor(context.Context, string, string, time.Time) error { return nil }
func (s *stubProvider) DisableTwoFactor(context.Context, string) error                   { return nil }
func (s *stubProvider) TouchTwoFactorUsed(context.Context, string, time.Time) error      { return nil }

func (s *stubProvider) GetBackupCodes(context.Context, string) ([]goVault.BackupCodeRecord, error) {
	return nil, nil
}

func (s *stubProvider) ReplaceBackupCodes(context.Context, string, []goVault.BackupCodeRecord) error {
	return nil
}

func (s *stubProvider) ConsumeBackupCode(context.Context, string, [32]byte) (bool, error) {
	return false, nil
}

func (s *stubProvider) RecordTwoFactorAttempt(context.Context, goVault.TwoFactorAttempt) error {
	return nil
}

func (s *stubProvider) CountRecentTwoFactorFailures(context.Context, string, string, time.Duration) (int, error) {
	return 0, nil
}

func (s *stubProvider) HasActiveSubscription(_ context.Context, userID string) (bool, error) {
	return s.subscribed[userID], nil
}

func newMiddlewareEngine(t *testing.T, provider *stubProvider, rules map[string]ratelimit.Rule) (*goVault.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := goVault.DevConfig()
	cfg.Token.SigningSecret = "middleware-test-secret"
	if rules != nil {
		cfg.RateLimit.Rules = rules
	}

	engine, err := goVault.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

// issueToken mints an access token with the engine's signing secret. The
// middleware only needs a verifiable token for a uuid-shaped subject.
func issueToken(t *testing.T, _ *goVault.Engine, userID string) string {
	t.Helper()

	manager, err := token.NewManager(token.Config{Secret: []byte("middleware-test-secret")})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	access, err := manager.IssueAccess(userID, "user@example.com", false)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	return access
}

func okHandler() (http.Handler, *int) {
	hits := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}), &hits
}

func TestRequireAuthInjectsPrincipal(t *testing.T) {
	provider := &stubProvider{subscribed: map[string]bool{}}
	engine, done := newMiddlewareEngine(t, provider, nil)
	defer done()

	userID := uuid.NewString()
	access := issueToken(t, engine, userID)

	var principal *goVault.Principal
	handler := RequireAuth(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if principal == nil || principal.UserID != userID {
		t.Fatalf("principal = %+v, want user %s", principal, userID)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	provider := &stubProvider{subscribed: map[string]bool{}}
	engine, done := newMiddlewareEngine(t, provider, nil)
	defer done()

	next, hits := okHandler()
	handler := RequireAuth(engine)(next)

	for _, header := range []string{"", "Bearer ", "Bearer garbage", "Basic abc123"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
	if *hits != 0 {
		t.Fatalf("handler reached %d times", *hits)
	}
}

func TestRequireOwnership(t *testing.T) {
	provider := &stubProvider{subscribed: map[string]bool{}}
	engine, done := newMiddlewareEngine(t, provider, nil)
	defer done()

	userID := uuid.NewString()
	access := issueToken(t, engine, userID)
	foreign := uuid.NewString()

	cases := []struct {
		name   string
		owner  *string
		status int
	}{
		{"own resource", &userID, http.StatusOK},
		{"unowned resource", nil, http.StatusOK},
		{"foreign resource", &foreign, http.StatusForbidden},
	}
	for _, tc := range cases {
		next, _ := okHandler()
		handler := RequireAuth(engine)(RequireOwnership(engine, func(*http.Request) (*string, error) {
			return tc.owner, nil
		})(next))

		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.status)
		}
	}
}

func TestRequireOwnershipResolverErrorIs404(t *testing.T) {
	provider := &stubProvider{subscribed: map[string]bool{}}
	engine, done := newMiddlewareEngine(t, provider, nil)
	defer done()

	access := issueToken(t, engine, uuid.NewString())

	next, hits := okHandler()
	handler := RequireAuth(engine)(RequireOwnership(engine, func(*http.Request) (*string, error) {
		return nil, errors.New("no such resource")
	})(next))

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if *hits != 0 {
		t.Fatal("handler reached despite resolver failure")
	}
}

func TestRequireSubscription(t *testing.T) {
	userID := uuid.NewString()
	provider := &stubProvider{subscribed: map[string]bool{userID: true}}
	engine, done := newMiddlewareEngine(t, provider, nil)
	defer done()

	access := issueToken(t, engine, userID)
	otherAccess := issueToken(t, engine, uuid.NewString())

	next, _ := okHandler()
	handler := RequireAuth(engine)(RequireSubscription(engine)(next))

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("subscriber status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Authorization", "Bearer "+otherAccess)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-subscriber status = %d, want 403", rec.Code)
	}
}

func TestRateLimitDeniesWithHeaders(t *testing.T) {
	provider := &stubProvider{subscribed: map[string]bool{}}
	engine, done := newMiddlewareEngine(t, provider, map[string]ratelimit.Rule{
		"general": {Limit: 2, Window: time.Minute},
		"login":   {Limit: 2, Window: time.Minute},
	})
	defer done()

	next, hits := okHandler()
	handler := RateLimit(engine, "general")(next)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("CF-Connecting-IP", "198.51.100.7")
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if *hits != 2 {
		t.Fatalf("handler hits = %d, want 2", *hits)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	if last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining = %q, want 0", last.Header().Get("X-RateLimit-Remaining"))
	}

	// A different client address is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("CF-Connecting-IP", "198.51.100.8")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh client status = %d, want 200", rec.Code)
	}
}
