package goVault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goVault/password"
)

// 64 hex chars, used directly as the AES key so tests skip passphrase
// stretching.
const testMasterKey = "7f3a9c1e5b8d2f4a6c0e8b3d7f1a5c9e2b4d6f8a0c3e5b7d9f1a3c5e7b9d0f2a"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testConfig() Config {
	cfg := DevConfig()
	cfg.Crypto.MasterKey = testMasterKey
	cfg.Token.SigningSecret = "test-signing-secret"
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, up UserProvider) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		WithPasswordConfig(password.Config{Memory: 16 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}).
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

func registerTestUser(t *testing.T, engine *Engine, email, pass string) string {
	t.Helper()

	res, err := engine.Register(context.Background(), RegisterRequest{Email: email, Password: pass})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := engine.VerifyEmail(context.Background(), res.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return res.UserID
}

func enableTestTwoFactor(t *testing.T, engine *Engine, userID string) (secret string, backupCodes []string) {
	t.Helper()

	setup, err := engine.BeginTwoFactorSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("BeginTwoFactorSetup failed: %v", err)
	}
	code := codeForNow(t, engine, setup.Secret)
	codes, err := engine.ConfirmTwoFactorSetup(context.Background(), userID, setup.Secret, code)
	if err != nil {
		t.Fatalf("ConfirmTwoFactorSetup failed: %v", err)
	}
	return setup.Secret, codes
}

func codeForNow(t *testing.T, engine *Engine, secret string) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, time.Now(), engine.totpOpts())
	if err != nil {
		t.Fatalf("GenerateCodeCustom failed: %v", err)
	}
	return code
}

// fakeProvider is the in-memory UserProvider used by engine tests. Error
// fields inject failures per method.
type fakeProvider struct {
	mu sync.Mutex

	users         map[string]UserRecord
	byHash        map[string]string
	verifications map[[32]byte]*fakeVerification
	backupCodes   map[string][]BackupCodeRecord
	attempts      []TwoFactorAttempt
	subscriptions map[string]bool

	recordErr error
	countErr  error
	subErr    error
}

type fakeVerification struct {
	userID    string
	expiresAt time.Time
	used      bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		users:         make(map[string]UserRecord),
		byHash:        make(map[string]string),
		verifications: make(map[[32]byte]*fakeVerification),
		backupCodes:   make(map[string][]BackupCodeRecord),
		subscriptions: make(map[string]bool),
	}
}

func (p *fakeProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (p *fakeProvider) GetUserByEmailHash(_ context.Context, emailHash string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byHash[emailHash]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.users[id], nil
}

func (p *fakeProvider) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byHash[input.EmailHash]; exists {
		return UserRecord{}, ErrAccountExists
	}
	u := UserRecord{
		UserID:         uuid.NewString(),
		EmailEncrypted: input.EmailEncrypted,
		EmailHash:      input.EmailHash,
		NameEncrypted:  input.NameEncrypted,
		PhoneEncrypted: input.PhoneEncrypted,
		PasswordHash:   input.PasswordHash,
		CreatedAt:      time.Now(),
	}
	p.users[u.UserID] = u
	p.byHash[u.EmailHash] = u.UserID
	return u, nil
}

func (p *fakeProvider) SoftDeleteUser(_ context.Context, userID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.DeletedAt = &at
	p.users[userID] = u
	return nil
}

func (p *fakeProvider) MarkEmailVerified(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerified = true
	p.users[userID] = u
	return nil
}

func (p *fakeProvider) CreateEmailVerification(_ context.Context, userID string, tokenHash [32]byte, expiresAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifications[tokenHash] = &fakeVerification{userID: userID, expiresAt: expiresAt}
	return nil
}

func (p *fakeProvider) ConsumeEmailVerification(_ context.Context, tokenHash [32]byte) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.verifications[tokenHash]
	if !ok || time.Now().After(v.expiresAt) {
		return "", false, nil
	}
	if v.used {
		return v.userID, false, nil
	}
	v.used = true
	return v.userID, true, nil
}

func (p *fakeProvider) EnableTwoFactor(_ context.Context, userID, encryptedSecret string, enabledAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorEnabled = true
	u.TwoFactorSecret = encryptedSecret
	u.TwoFactorEnabledAt = &enabledAt
	p.users[userID] = u
	return nil
}

func (p *fakeProvider) DisableTwoFactor(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorEnabled = false
	u.TwoFactorSecret = ""
	u.TwoFactorEnabledAt = nil
	u.TwoFactorLastUsed = nil
	p.users[userID] = u
	delete(p.backupCodes, userID)
	return nil
}

func (p *fakeProvider) TouchTwoFactorUsed(_ context.Context, userID string, usedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorLastUsed = &usedAt
	p.users[userID] = u
	return nil
}

func (p *fakeProvider) GetBackupCodes(_ context.Context, userID string) ([]BackupCodeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]BackupCodeRecord(nil), p.backupCodes[userID]...), nil
}

func (p *fakeProvider) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backupCodes[userID] = append([]BackupCodeRecord(nil), codes...)
	return nil
}

func (p *fakeProvider) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	codes := p.backupCodes[userID]
	now := time.Now()
	for i := range codes {
		if codes[i].Hash != hash || codes[i].UsedAt != nil {
			continue
		}
		if codes[i].ExpiresAt != nil && now.After(*codes[i].ExpiresAt) {
			continue
		}
		codes[i].UsedAt = &now
		return true, nil
	}
	return false, nil
}

func (p *fakeProvider) RecordTwoFactorAttempt(_ context.Context, attempt TwoFactorAttempt) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recordErr != nil {
		return p.recordErr
	}
	p.attempts = append(p.attempts, attempt)
	return nil
}

func (p *fakeProvider) CountRecentTwoFactorFailures(_ context.Context, userID, ip string, window time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.countErr != nil {
		return 0, p.countErr
	}
	cutoff := time.Now().Add(-window)
	count := 0
	for _, a := range p.attempts {
		if a.Success || a.AttemptedAt.Before(cutoff) {
			continue
		}
		if a.UserID == userID || (ip != "" && a.IPAddress == ip) {
			count++
		}
	}
	return count, nil
}

func (p *fakeProvider) HasActiveSubscription(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subErr != nil {
		return false, p.subErr
	}
	return p.subscriptions[userID], nil
}

func TestAuthenticateRoundTrip(t *testing.T) {
	up := newFakeProvider()
	engine, done := newTestEngine(t, testConfig(), up)
	defer done()

	registerTestUser(t, engine, "alice@example.com", "correct-horse-battery")

	res, err := engine.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	principal, err := engine.Authenticate(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if principal.Email != "alice@example.com" {
		t.Fatalf("principal email = %q", principal.Email)
	}
	if uuid.Validate(principal.UserID) != nil {
		t.Fatalf("principal user id not a uuid: %q", principal.UserID)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	up := newFakeProvider()
	engine, done := newTestEngine(t, testConfig(), up)
	defer done()

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := engine.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Authenticate(%q) = %v, want ErrUnauthorized", token, err)
		}
	}
}

func TestAuthorizeOwnership(t *testing.T) {
	up := newFakeProvider()
	engine, done := newTestEngine(t, testConfig(), up)
	defer done()

	owner := uuid.NewString()
	other := uuid.NewString()
	principal := &Principal{UserID: owner}

	if err := engine.AuthorizeOwnership(context.Background(), principal, &owner); err != nil {
		t.Fatalf("own resource denied: %v", err)
	}
	if err := engine.AuthorizeOwnership(context.Background(), principal, nil); err != nil {
		t.Fatalf("unowned resource denied: %v", err)
	}
	empty := ""
	if err := engine.AuthorizeOwnership(context.Background(), principal, &empty); err != nil {
		t.Fatalf("empty owner denied: %v", err)
	}
	if err := engine.AuthorizeOwnership(context.Background(), principal, &other); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("foreign resource = %v, want ErrPermissionDenied", err)
	}
	malformed := "1 OR 1=1"
	if err := engine.AuthorizeOwnership(context.Background(), principal, &malformed); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("malformed owner = %v, want ErrPermissionDenied", err)
	}
	if err := engine.AuthorizeOwnership(context.Background(), nil, &owner); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil principal = %v, want ErrUnauthorized", err)
	}
}

func TestRequireSubscriptionFailsClosed(t *testing.T) {
	up := newFakeProvider()
	engine, done := newTestEngine(t, testConfig(), up)
	defer done()

	userID := uuid.NewString()
	if engine.RequireSubscription(context.Background(), userID) {
		t.Fatal("no subscription row should deny")
	}

	up.subscriptions[userID] = true
	if !engine.RequireSubscription(context.Background(), userID) {
		t.Fatal("active subscription should allow")
	}

	up.subErr = errors.New("db down")
	if engine.RequireSubscription(context.Background(), userID) {
		t.Fatal("lookup failure should deny")
	}
}

func TestSoftDeleteBlocksLogin(t *testing.T) {
	up := newFakeProvider()
	engine, done := newTestEngine(t, testConfig(), up)
	defer done()

	userID := registerTestUser(t, engine, "gone@example.com", "correct-horse-battery")

	if err := engine.SoftDelete(context.Background(), userID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	_, err := engine.Login(context.Background(), LoginRequest{Email: "gone@example.com", Password: "correct-horse-battery"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login after soft delete = %v, want ErrInvalidCredentials", err)
	}

	if err := engine.SoftDelete(context.Background(), userID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("second soft delete = %v, want ErrUserNotFound", err)
	}
}
