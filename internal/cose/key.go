// Package cose imports public keys from decoded COSE key maps and verifies
// WebAuthn ceremony signatures with them. The supported set is closed: EC2
// P-256 with ES256 and RSA with RS256, the two algorithms the registration
// options advertise. Anything else is rejected, never defaulted.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
)

// COSE key map labels, per RFC 9052 §7. Named so the importer reads in
// terms of fields instead of raw negative integers.
const (
	labelKeyType   int64 = 1
	labelAlgorithm int64 = 3

	labelEC2Curve int64 = -1
	labelEC2X     int64 = -2
	labelEC2Y     int64 = -3

	labelRSAModulus  int64 = -1
	labelRSAExponent int64 = -2
)

// Key types and algorithm identifiers from the COSE registries.
const (
	KeyTypeEC2 int64 = 2
	KeyTypeRSA int64 = 3

	AlgES256 int64 = -7
	AlgRS256 int64 = -257

	curveP256 int64 = 1
)

// p256CoordinateSize is the fixed coordinate width of the only supported
// curve. The DER signature fallback pads r and s to this width; if another
// curve is ever added the width must be derived from the algorithm.
const p256CoordinateSize = 32

var (
	// ErrUnsupportedAlgorithm reports a key type/algorithm combination
	// outside the closed supported set.
	ErrUnsupportedAlgorithm = errors.New("unsupported key algorithm")
	// ErrMalformedKey reports a COSE map missing or mistyping a required
	// field for its declared key type.
	ErrMalformedKey = errors.New("malformed cose key")
	// ErrSignature reports a signature that failed verification.
	ErrSignature = errors.New("signature verification failed")
)

// PublicKey is an imported, verification-ready public key.
type PublicKey interface {
	// Algorithm returns the COSE algorithm identifier of the key.
	Algorithm() int64
	// Verify checks sig over message (hashed with SHA-256) and returns
	// ErrSignature on mismatch.
	Verify(message, sig []byte) error
}

// Import converts a decoded COSE key map into a PublicKey. The algorithm is
// taken from the map when present; algHint covers authentication responses
// that omit it.
func Import(m map[any]any, algHint int64) (PublicKey, error) {
	kty, ok := mapInt(m, labelKeyType)
	if !ok {
		return nil, fmt.Errorf("%w: missing key type", ErrMalformedKey)
	}
	alg, ok := mapInt(m, labelAlgorithm)
	if !ok {
		alg = algHint
	}

	switch {
	case kty == KeyTypeEC2 && alg == AlgES256:
		return importEC2(m)
	case kty == KeyTypeRSA && alg == AlgRS256:
		return importRSA(m)
	default:
		return nil, fmt.Errorf("%w: kty %d alg %d", ErrUnsupportedAlgorithm, kty, alg)
	}
}

func importEC2(m map[any]any) (PublicKey, error) {
	if crv, ok := mapInt(m, labelEC2Curve); !ok || crv != curveP256 {
		return nil, fmt.Errorf("%w: curve %d", ErrUnsupportedAlgorithm, crv)
	}
	x, ok := mapBytes(m, labelEC2X)
	if !ok {
		return nil, fmt.Errorf("%w: missing x coordinate", ErrMalformedKey)
	}
	y, ok := mapBytes(m, labelEC2Y)
	if !ok {
		return nil, fmt.Errorf("%w: missing y coordinate", ErrMalformedKey)
	}
	if len(x) != p256CoordinateSize || len(y) != p256CoordinateSize {
		return nil, fmt.Errorf("%w: coordinate width %d/%d, want %d", ErrMalformedKey, len(x), len(y), p256CoordinateSize)
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("%w: point not on curve", ErrMalformedKey)
	}
	return &ecKey{pub: pub}, nil
}

func importRSA(m map[any]any) (PublicKey, error) {
	n, ok := mapBytes(m, labelRSAModulus)
	if !ok || len(n) == 0 {
		return nil, fmt.Errorf("%w: missing modulus", ErrMalformedKey)
	}
	e, ok := mapBytes(m, labelRSAExponent)
	if !ok || len(e) == 0 || len(e) > 8 {
		return nil, fmt.Errorf("%w: missing or oversized exponent", ErrMalformedKey)
	}

	exp := 0
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	if exp <= 1 {
		return nil, fmt.Errorf("%w: exponent %d", ErrMalformedKey, exp)
	}

	pub := &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: exp,
	}
	return &rsaKey{pub: pub}, nil
}

type ecKey struct {
	pub *ecdsa.PublicKey
}

func (k *ecKey) Algorithm() int64 { return AlgES256 }

// Verify accepts both signature encodings seen in the wild: raw r||s at
// fixed curve width, and ASN.1/DER. The raw form is tried as delivered; on
// failure the bytes are reparsed as DER, r and s renormalized to 32-byte
// big-endian widths, and verification retried once.
func (k *ecKey) Verify(message, sig []byte) error {
	digest := sha256.Sum256(message)

	if len(sig) == 2*p256CoordinateSize {
		r := new(big.Int).SetBytes(sig[:p256CoordinateSize])
		s := new(big.Int).SetBytes(sig[p256CoordinateSize:])
		if ecdsa.Verify(k.pub, digest[:], r, s) {
			return nil
		}
	}

	var der struct{ R, S *big.Int }
	rest, err := asn1.Unmarshal(sig, &der)
	if err != nil || len(rest) != 0 || der.R == nil || der.S == nil {
		return ErrSignature
	}
	if der.R.BitLen() > 8*p256CoordinateSize || der.S.BitLen() > 8*p256CoordinateSize {
		return ErrSignature
	}
	if !ecdsa.Verify(k.pub, digest[:], der.R, der.S) {
		return ErrSignature
	}
	return nil
}

type rsaKey struct {
	pub *rsa.PublicKey
}

func (k *rsaKey) Algorithm() int64 { return AlgRS256 }

func (k *rsaKey) Verify(message, sig []byte) error {
	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(k.pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrSignature
	}
	return nil
}

func mapInt(m map[any]any, label int64) (int64, bool) {
	v, ok := m[label].(int64)
	return v, ok
}

func mapBytes(m map[any]any, label int64) ([]byte, bool) {
	v, ok := m[label].([]byte)
	return v, ok
}
