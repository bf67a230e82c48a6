package passkey

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until ceremonies run.
type Builder struct {
	config Config
	redis  *redis.Client

	credentials CredentialStore
	users       UserProvider
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. The config is cloned; later
// mutation of cfg does not reach the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the shared cache for challenge storage. Without it, or
// whenever the cache errors, challenges degrade to a process-lifetime
// in-memory store.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore supplies the durable credential persistence, owned by
// the surrounding application.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithUserProvider supplies account resolution for ceremony starts.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

// WithAuditSink supplies the audit event destination. Audit must also be
// enabled in the config for events to flow.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the engine counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns the Engine. A Builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.users == nil {
		return nil, errors.New("user provider required")
	}
	if err := validateConfig(&b.config); err != nil {
		return nil, err
	}

	metrics := NewMetrics(b.config.Metrics)
	engine := &Engine{
		config:      b.config,
		challenges:  newChallengeStore(b.config.Challenge, b.redis, metrics),
		credentials: b.credentials,
		users:       b.users,
		metrics:     metrics,
		audit:       newAuditDispatcher(b.config.Audit, b.auditSink),
	}
	if b.config.SessionToken.Enabled {
		engine.tokens = newSessionTokenIssuer(b.config.SessionToken)
	}

	b.built = true
	return engine, nil
}
