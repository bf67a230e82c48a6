package passkey

import "errors"

var (
	// ErrMalformedInput reports truncated or structurally invalid binary
	// input: a short authenticator-data buffer, an undecodable attestation
	// object, or an embedded key that is not well-formed CBOR.
	ErrMalformedInput = errors.New("malformed ceremony input")
	// ErrClientDataInvalid reports a client-data type, challenge, or
	// origin mismatch. The response is stale or forged.
	ErrClientDataInvalid = errors.New("client data invalid")
	// ErrRPMismatch reports authenticator data hashed for a different
	// relying party than the one configured.
	ErrRPMismatch = errors.New("relying party mismatch")
	// ErrUserVerificationRequired reports a response without both user
	// presence and user verification. Presence alone never passes.
	ErrUserVerificationRequired = errors.New("user verification required")
	// ErrMissingCredentialData reports a registration response whose
	// authenticator data carries no attested credential.
	ErrMissingCredentialData = errors.New("missing attested credential data")
	// ErrUnsupportedAlgorithm reports a public key outside the closed
	// supported set (ES256, RS256). Unknown algorithms are never
	// defaulted.
	ErrUnsupportedAlgorithm = errors.New("unsupported credential algorithm")
	// ErrSignatureInvalid reports an assertion signature that failed
	// verification after both encoding interpretations were tried.
	ErrSignatureInvalid = errors.New("assertion signature invalid")
	// ErrChallengeExpiredOrConsumed reports a challenge that is unknown,
	// expired, or already used. The caller restarts the ceremony.
	ErrChallengeExpiredOrConsumed = errors.New("challenge expired or consumed")
	// ErrCredentialAlreadyBound reports a registration for a credential
	// id that is already persisted.
	ErrCredentialAlreadyBound = errors.New("credential already bound")
	// ErrCredentialNotFound reports an authentication for an unknown
	// credential id.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrUserNotFound reports a ceremony started for an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserHandleMismatch reports a client-supplied user handle that
	// disagrees with the stored credential's handle.
	ErrUserHandleMismatch = errors.New("user handle mismatch")
	// ErrCredentialStoreUnavailable reports a credential store backend
	// failure.
	ErrCredentialStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady reports use of an Engine whose required
	// dependencies were not supplied to the Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)
