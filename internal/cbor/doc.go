// Package cbor implements the restricted subset of the CBOR data model that
// WebAuthn attestation objects and COSE public keys are encoded in: integers,
// byte strings, text strings, arrays, maps with string or integer keys,
// booleans, and null.
//
// The decoder is deliberately permissive about map key ordering and duplicate
// keys, matching what real authenticators emit, and deliberately strict about
// everything else: truncated input, indefinite lengths, tags, and floats are
// all decode errors. Integer map keys keep their numeric identity (COSE maps
// use negative integer labels), so decoded maps are map[any]any with string
// or int64 keys.
package cbor
