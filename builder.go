package goVault

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goVault/fieldcrypt"
	"github.com/MrEthical07/goVault/password"
	"github.com/MrEthical07/goVault/ratelimit"
	"github.com/MrEthical07/goVault/token"
)

// Builder assembles an [Engine] from a config and injected collaborators.
// Collaborators are explicit so the engine stays testable in isolation; no
// module-level singletons exist.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users  UserProvider
	email  EmailSender
	sink   Sink
	events SecurityEventStore

	passwordConfig *password.Config

	built bool
}

// New starts a builder preloaded with [DevConfig].
func New() *Builder {
	return &Builder{config: DevConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis wires the Redis client backing rate-limit counters and login
// challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider wires the persistence collaborator. Required.
func (b *Builder) WithUserProvider(users UserProvider) *Builder {
	b.users = users
	return b
}

// WithEmailSender wires the delivery collaborator. Optional; without it,
// verification tokens are returned to the caller instead of emailed.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.email = sender
	return b
}

// WithSink wires the security/audit event sink.
func (b *Builder) WithSink(sink Sink) *Builder {
	b.sink = sink
	return b
}

// WithSecurityEventStore wires the operator query surface.
func (b *Builder) WithSecurityEventStore(store SecurityEventStore) *Builder {
	b.events = store
	return b
}

// WithPasswordConfig overrides the Argon2id cost parameters.
func (b *Builder) WithPasswordConfig(cfg password.Config) *Builder {
	b.passwordConfig = &cfg
	return b
}

// Build validates the configuration and constructs the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("goVault: builder already used")
	}
	if b.users == nil {
		return nil, errors.New("goVault: user provider required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil && b.config.RateLimit.Enabled {
		return nil, errors.New("goVault: rate limiting requires redis client")
	}

	cipher, err := fieldcrypt.New(fieldcrypt.Config{
		MasterKey:  b.config.Crypto.MasterKey,
		Production: b.config.Production,
	})
	if err != nil {
		return nil, err
	}

	secret := []byte(b.config.Token.SigningSecret)
	if len(secret) == 0 {
		// Validate already rejected this for production.
		secret = []byte("govault-dev-signing-secret")
	}
	tokens, err := token.NewManager(token.Config{
		Secret:             secret,
		AccessTTL:          b.config.Token.AccessTTL,
		RefreshTTL:         b.config.Token.RefreshTTL,
		RememberRefreshTTL: b.config.Token.RememberRefreshTTL,
		Issuer:             b.config.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	passwordCfg := password.DefaultConfig()
	if b.passwordConfig != nil {
		passwordCfg = *b.passwordConfig
	}
	passwords, err := password.New(passwordCfg)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    b.config,
		cipher:    cipher,
		tokens:    tokens,
		passwords: passwords,
		users:     b.users,
		email:     b.email,
		events:    b.events,
		audit:     newAuditDispatcher(b.config.Audit, b.sink),
		metrics:   newMetrics(b.config.Metrics),
	}

	if b.redis != nil {
		if b.config.RateLimit.Enabled {
			engine.limiter = ratelimit.New(b.redis, b.config.RateLimit.Prefix, b.config.RateLimit.Rules)
		}
		engine.challenges = newLoginChallengeStore(b.redis, b.config.TwoFactor.ChallengeTTL)
	}

	b.built = true
	return engine, nil
}
