package goVault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	challengeKeyPrefix  = "gvc"
	defaultChallengeTTL = 5 * time.Minute
)

var (
	errChallengeNotFound = errors.New("login challenge not found")
	errChallengeBackend  = errors.New("login challenge backend unavailable")
)

// loginChallenge bridges password verification and second-factor
// submission. It lives only in Redis for its short TTL; token issuance
// happens strictly after the challenge is consumed.
type loginChallenge struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	Remember bool   `json:"remember"`
	// Unix nanoseconds; checked on read in addition to the Redis TTL.
	ExpiresAt int64 `json:"exp"`
}

type loginChallengeStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func newLoginChallengeStore(client redis.UniversalClient, ttl time.Duration) *loginChallengeStore {
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	return &loginChallengeStore{redis: client, ttl: ttl}
}

func (s *loginChallengeStore) key(id string) string {
	return challengeKeyPrefix + ":" + id
}

// Create stores a fresh challenge and returns its opaque id.
func (s *loginChallengeStore) Create(ctx context.Context, userID, email string, remember bool) (string, error) {
	id := uuid.NewString()
	record := loginChallenge{
		UserID:    userID,
		Email:     email,
		Remember:  remember,
		ExpiresAt: time.Now().Add(s.ttl).UnixNano(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(id), encoded, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return id, nil
}

// Get loads a live challenge. Expired entries are removed on read.
func (s *loginChallengeStore) Get(ctx context.Context, id string) (*loginChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	var record loginChallenge
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errChallengeNotFound
	}
	if time.Now().UnixNano() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, errChallengeNotFound
	}
	return &record, nil
}

// Consume deletes the challenge; only the deleting caller may issue
// tokens, so a challenge completes at most once.
func (s *loginChallengeStore) Consume(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return n > 0, nil
}
