package passkey

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	fxcbor "github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/panelkit/passkey/internal/authdata"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
	testUserID = "42"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.RelyingParty = RelyingPartyConfig{
		ID:     testRPID,
		Name:   "Example Panel",
		Origin: testOrigin,
	}
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *mockCredentialStore, *redis.Client, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newMockCredentialStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithUserProvider(newMockUserProvider()).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, store, rdb, func() {
		engine.Close()
		mr.Close()
	}
}

type mockUserProvider struct {
	users map[string]UserRecord
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users: map[string]UserRecord{
			testUserID: {UserID: testUserID, Username: "alice@example.com", DisplayName: "Alice"},
		},
	}
}

func (p *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	user, ok := p.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

type mockCredentialStore struct {
	mu      sync.Mutex
	byID    map[string]CredentialRecord
	inserts int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{byID: map[string]CredentialRecord{}}
}

func (s *mockCredentialStore) GetCredentialByID(_ context.Context, credentialID string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[credentialID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	out := record
	return &out, nil
}

func (s *mockCredentialStore) GetCredentialsForUser(_ context.Context, userID string) ([]CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CredentialRecord
	for _, record := range s.byID {
		if record.OwnerUserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *mockCredentialStore) InsertCredential(_ context.Context, record CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[record.CredentialID]; exists {
		return ErrCredentialAlreadyBound
	}
	s.byID[record.CredentialID] = record
	s.inserts++
	return nil
}

func (s *mockCredentialStore) UpdateCredentialUsage(_ context.Context, credentialID string, newCounter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	if newCounter > record.SignCounter {
		record.SignCounter = newCounter
		s.byID[credentialID] = record
	}
	return nil
}

func (s *mockCredentialStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *mockCredentialStore) get(t *testing.T, credentialID string) CredentialRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[credentialID]
	if !ok {
		t.Fatalf("credential %q not in store", credentialID)
	}
	return record
}

func (s *mockCredentialStore) put(record CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[record.CredentialID] = record
}

/*
====================================
CEREMONY FIXTURES
====================================

The helpers below play the client/authenticator side of a ceremony: they
mint COSE keys, authenticator data, attestation objects, and assertion
signatures the way a real authenticator would, using an independent CBOR
encoder.
*/

type testAuthenticator struct {
	ecKey        *ecdsa.PrivateKey
	rsaKey       *rsa.PrivateKey
	algorithm    int64
	credentialID []byte
}

func newECAuthenticator(t *testing.T) *testAuthenticator {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ecdsa.GenerateKey failed: %v", err)
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		t.Fatalf("credential id entropy: %v", err)
	}
	return &testAuthenticator{ecKey: key, algorithm: AlgES256, credentialID: id}
}

func newRSAAuthenticator(t *testing.T) *testAuthenticator {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		t.Fatalf("credential id entropy: %v", err)
	}
	return &testAuthenticator{rsaKey: key, algorithm: AlgRS256, credentialID: id}
}

func (a *testAuthenticator) credentialIDString() string {
	return base64.RawURLEncoding.EncodeToString(a.credentialID)
}

func (a *testAuthenticator) coseKeyBytes(t *testing.T) []byte {
	t.Helper()

	var m map[int64]any
	if a.ecKey != nil {
		x := make([]byte, 32)
		y := make([]byte, 32)
		a.ecKey.PublicKey.X.FillBytes(x)
		a.ecKey.PublicKey.Y.FillBytes(y)
		m = map[int64]any{1: int64(2), 3: AlgES256, -1: int64(1), -2: x, -3: y}
	} else {
		m = map[int64]any{1: int64(3), 3: AlgRS256, -1: a.rsaKey.PublicKey.N.Bytes(), -2: []byte{0x01, 0x00, 0x01}}
	}

	data, err := fxcbor.Marshal(m)
	if err != nil {
		t.Fatalf("encoding test key failed: %v", err)
	}
	return data
}

func (a *testAuthenticator) sign(t *testing.T, payload []byte) []byte {
	t.Helper()

	digest := sha256.Sum256(payload)
	if a.ecKey != nil {
		sig, err := ecdsa.SignASN1(rand.Reader, a.ecKey, digest[:])
		if err != nil {
			t.Fatalf("SignASN1 failed: %v", err)
		}
		return sig
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, a.rsaKey, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15 failed: %v", err)
	}
	return sig
}

func buildAuthData(t *testing.T, rpID string, flags byte, signCount uint32, credentialID, keyBytes []byte) []byte {
	t.Helper()

	rpHash := sha256.Sum256([]byte(rpID))
	buf := append([]byte{}, rpHash[:]...)
	buf = append(buf, flags)
	buf = binary.BigEndian.AppendUint32(buf, signCount)

	if flags&authdata.FlagAttestedCredential != 0 {
		buf = append(buf, make([]byte, 16)...) // AAGUID
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(credentialID)))
		buf = append(buf, credentialID...)
		buf = append(buf, keyBytes...)
	}
	return buf
}

func buildAttestationObject(t *testing.T, authData []byte) []byte {
	t.Helper()

	data, err := fxcbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		t.Fatalf("encoding attestation object failed: %v", err)
	}
	return data
}

func clientDataJSON(t *testing.T, ceremonyType, challenge, origin string) []byte {
	t.Helper()

	data, err := json.Marshal(map[string]any{
		"type":      ceremonyType,
		"challenge": challenge,
		"origin":    origin,
	})
	if err != nil {
		t.Fatalf("encoding client data failed: %v", err)
	}
	return data
}

// registrationResponse assembles a complete, valid registration response
// for the given challenge. Tests mutate individual fields to hit failures.
func (a *testAuthenticator) registrationResponse(t *testing.T, challenge, origin string) *RegistrationResponse {
	t.Helper()

	flags := authdata.FlagUserPresent | authdata.FlagUserVerified | authdata.FlagAttestedCredential
	authData := buildAuthData(t, testRPID, flags, 0, a.credentialID, a.coseKeyBytes(t))

	return &RegistrationResponse{
		CredentialID:      a.credentialIDString(),
		ClientDataJSON:    clientDataJSON(t, clientDataTypeCreate, challenge, origin),
		AttestationObject: buildAttestationObject(t, authData),
		Transports:        []string{TransportInternal},
	}
}

// assertionResponse assembles a complete, valid authentication response.
func (a *testAuthenticator) assertionResponse(t *testing.T, challenge, origin string, signCount uint32) *AuthenticationResponse {
	t.Helper()

	flags := authdata.FlagUserPresent | authdata.FlagUserVerified
	authData := buildAuthData(t, testRPID, flags, signCount, nil, nil)
	clientData := clientDataJSON(t, clientDataTypeGet, challenge, origin)

	clientHash := sha256.Sum256(clientData)
	payload := append(append([]byte{}, authData...), clientHash[:]...)

	return &AuthenticationResponse{
		CredentialID:      a.credentialIDString(),
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         a.sign(t, payload),
	}
}

// register runs a full, valid registration ceremony and returns the result.
func (a *testAuthenticator) register(t *testing.T, engine *Engine) *RegistrationResult {
	t.Helper()

	options, err := engine.BeginRegistration(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("BeginRegistration failed: %v", err)
	}
	result, err := engine.FinishRegistration(context.Background(), a.registrationResponse(t, options.Challenge, testOrigin))
	if err != nil {
		t.Fatalf("FinishRegistration failed: %v", err)
	}
	return result
}
