package authdata

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	fxcbor "github.com/fxamacker/cbor/v2"
)

const testRPID = "example.com"

func coseKeyBytes(t *testing.T) []byte {
	t.Helper()

	data, err := fxcbor.Marshal(map[int64]any{
		1:  int64(2),
		3:  int64(-7),
		-1: int64(1),
		-2: bytes.Repeat([]byte{0x11}, 32),
		-3: bytes.Repeat([]byte{0x22}, 32),
	})
	if err != nil {
		t.Fatalf("encoding test key failed: %v", err)
	}
	return data
}

func buildAuthData(rpID string, flags byte, signCount uint32, credentialID, keyBytes []byte) []byte {
	rpHash := sha256.Sum256([]byte(rpID))

	buf := make([]byte, 0, 64)
	buf = append(buf, rpHash[:]...)
	buf = append(buf, flags)
	buf = binary.BigEndian.AppendUint32(buf, signCount)

	if flags&FlagAttestedCredential != 0 {
		buf = append(buf, make([]byte, aaguidLength)...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(credentialID)))
		buf = append(buf, credentialID...)
		buf = append(buf, keyBytes...)
	}
	return buf
}

func TestParseBaseFields(t *testing.T) {
	raw := buildAuthData(testRPID, FlagUserPresent|FlagUserVerified, 42, nil, nil)

	d, err := Parse(raw, testRPID, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.SignCount != 42 {
		t.Fatalf("SignCount = %d, want 42", d.SignCount)
	}
	if !d.UserPresent || !d.UserVerified {
		t.Fatal("expected presence and verification flags set")
	}
	if d.CredentialID != nil || d.PublicKeyBytes != nil {
		t.Fatal("expected no attested credential data")
	}
}

func TestParseAttestedCredential(t *testing.T) {
	keyBytes := coseKeyBytes(t)
	credID := []byte{0xde, 0xad, 0xbe, 0xef}
	flags := FlagUserPresent | FlagUserVerified | FlagAttestedCredential
	raw := buildAuthData(testRPID, flags, 0, credID, keyBytes)

	d, err := Parse(raw, testRPID, true)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !bytes.Equal(d.CredentialID, credID) {
		t.Fatalf("CredentialID = %x, want %x", d.CredentialID, credID)
	}
	// The key has no length prefix; its extent comes from decoding it.
	if !bytes.Equal(d.PublicKeyBytes, keyBytes) {
		t.Fatalf("PublicKeyBytes = %x, want %x", d.PublicKeyBytes, keyBytes)
	}
}

func TestParseRejectsWrongRelyingParty(t *testing.T) {
	raw := buildAuthData("evil.example", FlagUserPresent|FlagUserVerified, 0, nil, nil)

	if _, err := Parse(raw, testRPID, false); !errors.Is(err, ErrRPMismatch) {
		t.Fatalf("expected ErrRPMismatch, got %v", err)
	}
}

func TestParseRequiresVerificationNotJustPresence(t *testing.T) {
	cases := []byte{0, FlagUserPresent, FlagUserVerified}
	for _, flags := range cases {
		raw := buildAuthData(testRPID, flags, 0, nil, nil)
		if _, err := Parse(raw, testRPID, false); !errors.Is(err, ErrUserVerificationRequired) {
			t.Fatalf("flags=%08b: expected ErrUserVerificationRequired, got %v", flags, err)
		}
	}
}

func TestParseRequiresAttestedCredentialWhenAsked(t *testing.T) {
	raw := buildAuthData(testRPID, FlagUserPresent|FlagUserVerified, 0, nil, nil)

	if _, err := Parse(raw, testRPID, true); !errors.Is(err, ErrMissingCredentialData) {
		t.Fatalf("expected ErrMissingCredentialData, got %v", err)
	}
}

func TestParseRejectsShortInput(t *testing.T) {
	full := buildAuthData(testRPID, FlagUserPresent|FlagUserVerified, 0, nil, nil)
	for cut := 0; cut < minLength; cut++ {
		if _, err := Parse(full[:cut], testRPID, false); !errors.Is(err, ErrMalformed) {
			t.Fatalf("cut=%d: expected ErrMalformed, got %v", cut, err)
		}
	}
}

func TestParseRejectsTruncatedAttestedData(t *testing.T) {
	keyBytes := coseKeyBytes(t)
	credID := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	flags := FlagUserPresent | FlagUserVerified | FlagAttestedCredential
	full := buildAuthData(testRPID, flags, 0, credID, keyBytes)

	for cut := minLength; cut < len(full); cut++ {
		if _, err := Parse(full[:cut], testRPID, true); !errors.Is(err, ErrMalformed) {
			t.Fatalf("cut=%d: expected ErrMalformed, got %v", cut, err)
		}
	}
}

func TestParseRejectsOversizedCredentialIDLength(t *testing.T) {
	rpHash := sha256.Sum256([]byte(testRPID))
	raw := append([]byte{}, rpHash[:]...)
	raw = append(raw, FlagUserPresent|FlagUserVerified|FlagAttestedCredential)
	raw = binary.BigEndian.AppendUint32(raw, 0)
	raw = append(raw, make([]byte, aaguidLength)...)
	raw = binary.BigEndian.AppendUint16(raw, 0xffff) // id length far past the buffer
	raw = append(raw, 0x01, 0x02)

	if _, err := Parse(raw, testRPID, true); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
