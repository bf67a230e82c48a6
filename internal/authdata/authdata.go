// Package authdata parses the fixed-layout authenticator data structure that
// accompanies every WebAuthn response: relying-party hash, flags, signature
// counter, and optionally the attested credential with its embedded COSE key.
package authdata

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/panelkit/passkey/internal/cbor"
)

// Flag bits of the authenticator data flags byte.
const (
	FlagUserPresent        = byte(1)
	FlagUserVerified       = byte(1 << 2)
	FlagAttestedCredential = byte(1 << 6)
	FlagExtensionData      = byte(1 << 7)
)

// minLength is rpIdHash (32) + flags (1) + signCount (4). Anything shorter
// cannot be authenticator data.
const minLength = 37

// aaguidLength is the authenticator id preceding the credential id. The
// value itself is not used; "none" attestation carries no trust in it.
const aaguidLength = 16

var (
	// ErrMalformed reports input too short for the fixed layout or for
	// its declared credential-id length.
	ErrMalformed = errors.New("malformed authenticator data")
	// ErrRPMismatch reports a relying-party hash that does not match the
	// expected relying-party id.
	ErrRPMismatch = errors.New("relying party hash mismatch")
	// ErrUserVerificationRequired reports a response whose flags lack
	// user presence or user verification.
	ErrUserVerificationRequired = errors.New("user verification required")
	// ErrMissingCredentialData reports a registration response without
	// attested credential data.
	ErrMissingCredentialData = errors.New("missing attested credential data")
)

// Data is the parsed authenticator data. CredentialID and PublicKeyBytes
// are populated only when the attested-credential flag is set;
// PublicKeyBytes holds the embedded COSE key exactly as encoded so it can
// be persisted verbatim.
type Data struct {
	RPIDHash       []byte
	Flags          byte
	SignCount      uint32
	CredentialID   []byte
	PublicKeyBytes []byte
	UserPresent    bool
	UserVerified   bool
}

// Parse decodes raw authenticator data and applies the policy checks that
// belong to the structure itself: the relying-party hash must match rpID,
// the user must be both present and verified (presence alone is never
// enough), and registration responses must carry attested credential data.
func Parse(raw []byte, rpID string, requireAttested bool) (*Data, error) {
	if len(raw) < minLength {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrMalformed, len(raw), minLength)
	}

	d := &Data{
		RPIDHash:  raw[0:32],
		Flags:     raw[32],
		SignCount: binary.BigEndian.Uint32(raw[33:37]),
	}
	d.UserPresent = d.Flags&FlagUserPresent != 0
	d.UserVerified = d.Flags&FlagUserVerified != 0

	expected := sha256.Sum256([]byte(rpID))
	if subtle.ConstantTimeCompare(expected[:], d.RPIDHash) != 1 {
		return nil, ErrRPMismatch
	}

	if !d.UserPresent || !d.UserVerified {
		return nil, ErrUserVerificationRequired
	}

	attested := d.Flags&FlagAttestedCredential != 0
	if requireAttested && !attested {
		return nil, ErrMissingCredentialData
	}

	if attested {
		rest := raw[minLength:]
		if len(rest) < aaguidLength+2 {
			return nil, fmt.Errorf("%w: truncated attested credential data", ErrMalformed)
		}
		rest = rest[aaguidLength:]

		credLen := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if len(rest) < credLen {
			return nil, fmt.Errorf("%w: credential id length %d exceeds remaining %d bytes", ErrMalformed, credLen, len(rest))
		}
		d.CredentialID = rest[:credLen]

		// The embedded COSE key has no length prefix; its size is
		// whatever one CBOR item consumes.
		keyStart := credLen
		_, keyEnd, err := cbor.Decode(rest, keyStart)
		if err != nil {
			return nil, fmt.Errorf("%w: embedded public key: %v", ErrMalformed, err)
		}
		d.PublicKeyBytes = rest[keyStart:keyEnd]
	}

	return d, nil
}
