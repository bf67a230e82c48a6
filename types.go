package passkey

import (
	"context"
	"time"
)

// CeremonyType distinguishes the two challenge-response exchanges. A
// challenge minted for one ceremony never satisfies the other.
type CeremonyType uint8

const (
	// CeremonyRegistration enrolls a new public-key credential.
	CeremonyRegistration CeremonyType = iota + 1
	// CeremonyAuthentication asserts possession of an enrolled credential.
	CeremonyAuthentication
)

// COSE algorithm identifiers advertised in registration options. These are
// the only algorithms the engine imports.
const (
	// AlgES256 is ECDSA over P-256 with SHA-256.
	AlgES256 int64 = -7
	// AlgRS256 is RSASSA-PKCS1-v1_5 with SHA-256.
	AlgRS256 int64 = -257
)

// Authenticator transport hints, relayed from the client so future
// allow-lists can prefer the transports a credential was seen on.
const (
	TransportUSB      = "usb"
	TransportNFC      = "nfc"
	TransportBLE      = "ble"
	TransportInternal = "internal"
	TransportHybrid   = "hybrid"
)

// UserRecord is the minimal account view the engine needs to run a
// ceremony. The surrounding panel owns the full account model.
type UserRecord struct {
	UserID      string
	Username    string
	DisplayName string
}

// UserProvider resolves accounts for ceremony starts. Implementations are
// owned by the caller's user database.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// CredentialRecord is one enrolled public-key credential. PublicKey holds
// the COSE key bytes base64url-encoded exactly as the authenticator emitted
// them; SignCounter only ever moves forward.
type CredentialRecord struct {
	CredentialID   string // base64url, globally unique
	OwnerUserID    string
	PublicKey      string // base64url COSE key bytes
	Algorithm      int64
	SignCounter    uint32
	RelyingPartyID string
	Transports     []string
	UserHandle     []byte
	DeviceLabel    string
	CreatedAt      time.Time
}

// CredentialStore is the durable per-user credential persistence owned by
// the surrounding application.
//
// UpdateCredentialUsage must apply the counter conditionally — only when
// newCounter exceeds the stored value — so concurrent logins from cloned
// credentials stay correct without a global lock. The engine always submits
// max(reported, stored).
type CredentialStore interface {
	GetCredentialByID(ctx context.Context, credentialID string) (*CredentialRecord, error)
	GetCredentialsForUser(ctx context.Context, userID string) ([]CredentialRecord, error)
	InsertCredential(ctx context.Context, record CredentialRecord) error
	UpdateCredentialUsage(ctx context.Context, credentialID string, newCounter uint32) error
}

// RegistrationResult is returned by [Engine.FinishRegistration] after every
// check passed and the credential was persisted.
type RegistrationResult struct {
	CredentialID string
	PublicKey    string
	Algorithm    int64
	SignCounter  uint32
	UserHandle   []byte
	Transports   []string
}

// AuthenticationResult is returned by [Engine.FinishAuthentication].
// CounterSuspicious is set when the authenticator reported a counter at or
// below the stored nonzero value — the signature of a cloned credential.
// The ceremony still completes; surfacing the flag is the caller's call.
type AuthenticationResult struct {
	UserID            string
	CredentialID      string
	NewSignCounter    uint32
	UserHandle        []byte
	RememberDevice    bool
	CounterSuspicious bool
	SessionToken      string
}

// RelyingPartyEntity identifies this service in option payloads.
type RelyingPartyEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UserEntity identifies the enrolling account in creation options. ID is
// the base64url user handle the authenticator stores alongside the key.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// CredentialParameter advertises one acceptable credential algorithm.
type CredentialParameter struct {
	Type string `json:"type"` // always "public-key"
	Alg  int64  `json:"alg"`
}

// CredentialDescriptor references an enrolled credential in allow and
// exclude lists.
type CredentialDescriptor struct {
	Type       string   `json:"type"` // always "public-key"
	ID         string   `json:"id"`   // base64url credential id
	Transports []string `json:"transports,omitempty"`
}

// AuthenticatorSelection constrains the client-side ceremony. The engine
// always demands user verification.
type AuthenticatorSelection struct {
	ResidentKey      string `json:"residentKey,omitempty"`
	UserVerification string `json:"userVerification"`
}

// RegistrationOptions is the payload handed to the client-side create()
// ceremony.
type RegistrationOptions struct {
	Challenge              string                 `json:"challenge"`
	RelyingParty           RelyingPartyEntity     `json:"rp"`
	User                   UserEntity             `json:"user"`
	PubKeyCredParams       []CredentialParameter  `json:"pubKeyCredParams"`
	Timeout                int64                  `json:"timeout"` // milliseconds
	ExcludeCredentials     []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Attestation            string                 `json:"attestation"` // always "none"
}

// AuthenticationOptions is the payload handed to the client-side get()
// ceremony.
type AuthenticationOptions struct {
	Challenge        string                 `json:"challenge"`
	RelyingPartyID   string                 `json:"rpId"`
	Timeout          int64                  `json:"timeout"` // milliseconds
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification"`
}

// RegistrationResponse is the client's answer to a registration ceremony.
// Binary fields arrive as the raw bytes the transport layer already
// base64url-decoded.
type RegistrationResponse struct {
	CredentialID      string // base64url
	ClientDataJSON    []byte
	AttestationObject []byte
	Transports        []string
	AlgorithmHint     int64 // used when the embedded key omits alg
	DeviceLabel       string
}

// AuthenticationResponse is the client's answer to an authentication
// ceremony.
type AuthenticationResponse struct {
	CredentialID      string // base64url
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte // optional
}
