package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnknownLimiter is returned when a check names a limiter that was
	// not configured.
	ErrUnknownLimiter = errors.New("ratelimit: unknown limiter")

	// ErrUnavailable wraps Redis failures so callers can fail closed
	// without leaking driver errors.
	ErrUnavailable = errors.New("ratelimit: backend unavailable")
)

// Rule bounds one named limiter: at most Limit checks per identifier per
// Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result reports the outcome of a limiter check.
type Result struct {
	Allowed bool

	// Limiter names the rule that denied the request, or the most
	// restrictive rule when allowed.
	Limiter   string
	Remaining int
	ResetAt   time.Time
}

// incrWindow counts the request and guarantees the bucket carries an
// expiry in the same atomic step, so a counter can never be orphaned
// without a TTL and pin its bucket shut.
var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}`)

// Limiter evaluates named fixed-window rules against Redis counters.
// Increment and expiry run as one script, so concurrent requests sharing
// an identifier bucket never undercount and every bucket reopens.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	rules  map[string]Rule
}

// New creates a Limiter. prefix namespaces all keys; rules maps limiter
// names to their windows.
func New(redisClient redis.UniversalClient, prefix string, rules map[string]Rule) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	copied := make(map[string]Rule, len(rules))
	for name, rule := range rules {
		copied[name] = rule
	}
	return &Limiter{redis: redisClient, prefix: prefix, rules: copied}
}

func (l *Limiter) key(name, identifier string) string {
	return l.prefix + ":" + name + ":" + identifier
}

// Check counts this request against the named limiter for the identifier
// and reports whether it is allowed, the remaining quota, and when the
// window resets.
func (l *Limiter) Check(ctx context.Context, name, identifier string) (Result, error) {
	rule, ok := l.rules[name]
	if !ok {
		return Result{}, ErrUnknownLimiter
	}

	key := l.key(name, identifier)
	raw, err := incrWindow.Run(ctx, l.redis, []string{key}, rule.Window.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %T", ErrUnavailable, raw)
	}
	count, _ := reply[0].(int64)
	ttlMillis, _ := reply[1].(int64)
	ttl := time.Duration(ttlMillis) * time.Millisecond

	remaining := rule.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(rule.Limit),
		Limiter:   name,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// CheckMultiple evaluates every named limiter and surfaces the first
// denial. When all allow, the combined result carries the minimum
// remaining quota and the maximum reset time.
func (l *Limiter) CheckMultiple(ctx context.Context, names []string, identifier string) (Result, error) {
	if len(names) == 0 {
		return Result{Allowed: true}, nil
	}

	var combined Result
	for i, name := range names {
		res, err := l.Check(ctx, name, identifier)
		if err != nil {
			return Result{}, err
		}
		if !res.Allowed {
			return res, nil
		}
		if i == 0 {
			combined = res
			continue
		}
		if res.Remaining < combined.Remaining {
			combined.Remaining = res.Remaining
			combined.Limiter = res.Limiter
		}
		if res.ResetAt.After(combined.ResetAt) {
			combined.ResetAt = res.ResetAt
		}
	}
	combined.Allowed = true
	return combined, nil
}

// Reset clears the counter for one identifier under one limiter. Used by
// flows that forgive failures after a success.
func (l *Limiter) Reset(ctx context.Context, name, identifier string) error {
	if err := l.redis.Del(ctx, l.key(name, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
