package passkey

import (
	"errors"
	"strings"
	"time"
)

// Config defines the engine configuration. Configure once through the
// [Builder] and treat as immutable afterwards.
type Config struct {
	RelyingParty RelyingPartyConfig
	Challenge    ChallengeConfig
	SessionToken SessionTokenConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
RELYING PARTY CONFIG
====================================
*/

// RelyingPartyConfig identifies the verifying service. ID is the
// relying-party identifier authenticators hash into every response; Origin
// is the exact origin string client data must carry.
type RelyingPartyConfig struct {
	ID     string
	Name   string
	Origin string
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig governs challenge minting and storage.
type ChallengeConfig struct {
	// TTL is how long an unconsumed challenge stays valid.
	TTL time.Duration
	// Size is the number of random bytes per challenge, at least 32.
	Size int
	// RedisPrefix namespaces challenge keys in the shared cache.
	RedisPrefix string
	// CeremonyTimeout is the client-side timeout advertised in option
	// payloads.
	CeremonyTimeout time.Duration
}

/*
====================================
SESSION TOKEN CONFIG
====================================
*/

// SessionTokenConfig controls the optional JWT minted after a successful
// authentication ceremony. Disabled unless a signing key is provided; the
// surrounding panel may equally ignore it and advance sessions itself.
type SessionTokenConfig struct {
	Enabled     bool
	Issuer      string
	TTL         time.Duration
	RememberTTL time.Duration // used when the ceremony set rememberDevice
	SigningKey  []byte        // HMAC-SHA256 secret
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is
	// saturated. Dropped counts are observable via [Engine.AuditDropped].
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the Builder starts from. The
// relying-party section is empty and must be filled in before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			TTL:             300 * time.Second,
			Size:            32,
			RedisPrefix:     "pkc",
			CeremonyTimeout: 60 * time.Second,
		},
		SessionToken: SessionTokenConfig{
			TTL:         15 * time.Minute,
			RememberTTL: 30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.SessionToken.SigningKey != nil {
		out.SessionToken.SigningKey = make([]byte, len(cfg.SessionToken.SigningKey))
		copy(out.SessionToken.SigningKey, cfg.SessionToken.SigningKey)
	}
	return out
}

func validateConfig(cfg *Config) error {
	if cfg.RelyingParty.ID == "" {
		return errors.New("relying party id required")
	}
	if cfg.RelyingParty.Origin == "" {
		return errors.New("relying party origin required")
	}
	if !strings.Contains(cfg.RelyingParty.Origin, "://") {
		return errors.New("relying party origin must be a full origin, e.g. https://example.com")
	}
	if cfg.Challenge.TTL <= 0 {
		cfg.Challenge.TTL = 300 * time.Second
	}
	if cfg.Challenge.Size < 32 {
		cfg.Challenge.Size = 32
	}
	if cfg.Challenge.RedisPrefix == "" {
		cfg.Challenge.RedisPrefix = "pkc"
	}
	if cfg.Challenge.CeremonyTimeout <= 0 {
		cfg.Challenge.CeremonyTimeout = 60 * time.Second
	}
	if cfg.SessionToken.Enabled {
		if len(cfg.SessionToken.SigningKey) < 32 {
			return errors.New("session token signing key must be at least 32 bytes")
		}
		if cfg.SessionToken.TTL <= 0 {
			return errors.New("session token ttl must be positive")
		}
		if cfg.SessionToken.RememberTTL < cfg.SessionToken.TTL {
			cfg.SessionToken.RememberTTL = cfg.SessionToken.TTL
		}
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize <= 0 {
		cfg.Audit.BufferSize = 256
	}
	return nil
}
