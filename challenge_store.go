package passkey

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	errChallengeNotFound = errors.New("challenge not found")
	errChallengeBackend  = errors.New("challenge backend unavailable")
)

// challengeRecord is the server-side context of an in-flight ceremony,
// keyed by a digest of the challenge value it was minted with.
type challengeRecord struct {
	Ceremony       CeremonyType
	Challenge      string // base64url challenge value the record was minted with
	UserID         string
	RelyingPartyID string
	Origin         string
	RememberDevice bool
	ExpiresAt      int64
}

// expiringKV is the minimal TTL key-value surface challenges need. Two
// implementations exist: redis-backed and in-process. Get returns
// errChallengeNotFound for a missing or expired key and errChallengeBackend
// for an unreachable backend; callers use the distinction to degrade.
type expiringKV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
}

type redisKV struct {
	client *redis.Client
}

func (s *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

func (s *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return data, nil
}

func (s *redisKV) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return n > 0, nil
}

// memoryKV is the process-lifetime fallback used when the cache is absent
// or unreachable. Entries are swept lazily on access.
type memoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value    []byte
	deadline time.Time
}

func newMemoryKV() *memoryKV {
	return &memoryKV{entries: make(map[string]memoryEntry)}
}

func (s *memoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.entries[key] = memoryEntry{value: value, deadline: time.Now().Add(ttl)}
	return nil
}

func (s *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, errChallengeNotFound
	}
	if time.Now().After(entry.deadline) {
		delete(s.entries, key)
		return nil, errChallengeNotFound
	}
	return entry.value, nil
}

func (s *memoryKV) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return !time.Now().After(entry.deadline), nil
}

func (s *memoryKV) sweepLocked() {
	now := time.Now()
	for key, entry := range s.entries {
		if now.After(entry.deadline) {
			delete(s.entries, key)
		}
	}
}

// challengeStore manages the Issued → Consumed/Expired lifecycle. Writes
// go to redis when available and degrade to the in-memory map on failure;
// reads check redis first, then memory. Cache errors never propagate to
// ceremony outcomes — a challenge the cache cannot produce is simply not
// found.
type challengeStore struct {
	prefix  string
	ttl     time.Duration
	size    int
	remote  expiringKV // nil when no redis client was supplied
	local   *memoryKV
	metrics *Metrics
}

func newChallengeStore(cfg ChallengeConfig, redisClient *redis.Client, metrics *Metrics) *challengeStore {
	s := &challengeStore{
		prefix:  cfg.RedisPrefix,
		ttl:     cfg.TTL,
		size:    cfg.Size,
		local:   newMemoryKV(),
		metrics: metrics,
	}
	if redisClient != nil {
		s.remote = &redisKV{client: redisClient}
	}
	return s
}

// key derives the storage key from the encoded challenge value. Hashing
// keeps raw challenge material out of cache keys.
func (s *challengeStore) key(challengeValue string) string {
	digest := sha256.Sum256([]byte(challengeValue))
	return s.prefix + ":" + base64.RawURLEncoding.EncodeToString(digest[:])
}

// Issue mints a fresh challenge value, persists its record, and returns the
// base64url-encoded value for the option payload.
func (s *challengeStore) Issue(ctx context.Context, record challengeRecord) (string, error) {
	raw := make([]byte, s.size)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("challenge entropy: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(raw)

	record.Challenge = value
	record.ExpiresAt = time.Now().Add(s.ttl).Unix()
	encoded, err := encodeChallengeRecord(&record)
	if err != nil {
		return "", err
	}

	if s.remote != nil {
		if err := s.remote.Set(ctx, s.key(value), encoded, s.ttl); err == nil {
			return value, nil
		}
		s.metrics.Inc(MetricCacheDegraded)
	}
	if err := s.local.Set(ctx, s.key(value), encoded, s.ttl); err != nil {
		return "", err
	}
	return value, nil
}

// Lookup fetches the record for a submitted challenge value without
// consuming it.
func (s *challengeStore) Lookup(ctx context.Context, challengeValue string) (*challengeRecord, error) {
	key := s.key(challengeValue)

	var data []byte
	if s.remote != nil {
		var err error
		data, err = s.remote.Get(ctx, key)
		if err != nil && !errors.Is(err, errChallengeNotFound) && !errors.Is(err, errChallengeBackend) {
			return nil, err
		}
	}
	if data == nil {
		var err error
		data, err = s.local.Get(ctx, key)
		if err != nil {
			return nil, errChallengeNotFound
		}
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.Consume(ctx, challengeValue)
		return nil, errChallengeNotFound
	}
	return record, nil
}

// Consume deletes the challenge from both stores unconditionally and
// reports whether either held it. Verification paths call this exactly once
// per attempt regardless of outcome; whoever consumes first wins, every
// later attempt finds nothing.
func (s *challengeStore) Consume(ctx context.Context, challengeValue string) (bool, error) {
	key := s.key(challengeValue)

	found := false
	if s.remote != nil {
		if deleted, err := s.remote.Delete(ctx, key); err == nil && deleted {
			found = true
		}
	}
	if deleted, _ := s.local.Delete(ctx, key); deleted {
		found = true
	}
	return found, nil
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)
	buf.WriteByte(byte(record.Ceremony))
	if record.RememberDevice {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.Challenge, record.UserID, record.RelyingPartyID, record.Origin} {
		if len(field) > 65535 {
			return nil, errors.New("challenge record field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &challengeRecord{}
	ceremony, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Ceremony = CeremonyType(ceremony)

	remember, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.RememberDevice = remember == 1

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{&record.Challenge, &record.UserID, &record.RelyingPartyID, &record.Origin} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, err
		}
		*field = string(b)
	}

	return record, nil
}
