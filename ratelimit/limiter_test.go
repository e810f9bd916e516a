package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, rules map[string]Rule) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "rl", rules), mr
}

func TestCheckCountsDownAndDenies(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"general": {Limit: 3, Window: time.Minute}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "general", "1.2.3.4")
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
		if res.Remaining != 3-(i+1) {
			t.Fatalf("request %d: remaining = %d", i+1, res.Remaining)
		}
	}

	res, err := l.Check(ctx, "general", "1.2.3.4")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("expected denial with zero remaining, got %+v", res)
	}
	if res.ResetAt.Before(time.Now()) {
		t.Fatal("reset time must be in the future")
	}
}

func TestWindowExpiryReopens(t *testing.T) {
	l, mr := newTestLimiter(t, map[string]Rule{"general": {Limit: 1, Window: time.Minute}})
	ctx := context.Background()

	if res, _ := l.Check(ctx, "general", "id"); !res.Allowed {
		t.Fatal("first request must be allowed")
	}
	if res, _ := l.Check(ctx, "general", "id"); res.Allowed {
		t.Fatal("second request must be denied")
	}

	mr.FastForward(61 * time.Second)

	if res, _ := l.Check(ctx, "general", "id"); !res.Allowed {
		t.Fatal("request after window expiry must be allowed")
	}
}

func TestCheckRepairsCounterWithoutExpiry(t *testing.T) {
	l, mr := newTestLimiter(t, map[string]Rule{"general": {Limit: 5, Window: time.Minute}})
	ctx := context.Background()

	// A counter stranded without a TTL would keep the bucket shut forever.
	key := l.key("general", "id")
	if err := mr.Set(key, "3"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	res, err := l.Check(ctx, "general", "id")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected allowed with remaining 1, got %+v", res)
	}
	if mr.TTL(key) <= 0 {
		t.Fatal("bucket still has no expiry")
	}

	mr.FastForward(61 * time.Second)

	res, err = l.Check(ctx, "general", "id")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Allowed || res.Remaining != 4 {
		t.Fatalf("bucket did not reopen after the window: %+v", res)
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"general": {Limit: 1, Window: time.Minute}})
	ctx := context.Background()

	if res, _ := l.Check(ctx, "general", "a"); !res.Allowed {
		t.Fatal("identifier a must be allowed")
	}
	if res, _ := l.Check(ctx, "general", "b"); !res.Allowed {
		t.Fatal("identifier b must not share a's bucket")
	}
}

func TestCheckMultipleFirstDenialWins(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{
		"general":  {Limit: 100, Window: time.Hour},
		"endpoint": {Limit: 1, Window: time.Minute},
	})
	ctx := context.Background()
	names := []string{"general", "endpoint"}

	res, err := l.CheckMultiple(ctx, names, "id")
	if err != nil {
		t.Fatalf("CheckMultiple failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("first pass must be allowed")
	}
	// Combined view: tightest remaining, latest reset.
	if res.Remaining != 0 || res.Limiter != "endpoint" {
		t.Fatalf("expected endpoint to bound the combined result, got %+v", res)
	}

	res, err = l.CheckMultiple(ctx, names, "id")
	if err != nil {
		t.Fatalf("CheckMultiple failed: %v", err)
	}
	if res.Allowed || res.Limiter != "endpoint" {
		t.Fatalf("expected endpoint denial, got %+v", res)
	}
}

func TestUnknownLimiter(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{})
	if _, err := l.Check(context.Background(), "nope", "id"); !errors.Is(err, ErrUnknownLimiter) {
		t.Fatalf("expected ErrUnknownLimiter, got %v", err)
	}
}

func TestBackendDownIsUnavailable(t *testing.T) {
	l, mr := newTestLimiter(t, map[string]Rule{"general": {Limit: 1, Window: time.Minute}})
	mr.Close()

	if _, err := l.Check(context.Background(), "general", "id"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientIdentifierResolutionOrder(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:4431"
	r.Header.Set("CF-Connecting-IP", "203.0.113.7")
	r.Header.Set("X-Forwarded-For", "198.51.100.2, 10.0.0.1")

	if got := ClientIdentifier(r, "user-1"); got != "203.0.113.7" {
		t.Fatalf("CDN header must win, got %q", got)
	}

	r.Header.Del("CF-Connecting-IP")
	if got := ClientIdentifier(r, "user-1"); got != "198.51.100.2" {
		t.Fatalf("first forwarded hop must win, got %q", got)
	}

	r.Header.Del("X-Forwarded-For")
	if got := ClientIdentifier(r, "user-1"); got != "10.0.0.9" {
		t.Fatalf("peer address must win, got %q", got)
	}

	r.RemoteAddr = ""
	if got := ClientIdentifier(r, "user-1"); got != "user-1" {
		t.Fatalf("user id fallback expected, got %q", got)
	}
	if got := ClientIdentifier(r, ""); got != UnknownIdentifier {
		t.Fatalf("sentinel bucket expected, got %q", got)
	}
}
