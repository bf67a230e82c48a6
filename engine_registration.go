package passkey

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/panelkit/passkey/internal/authdata"
	"github.com/panelkit/passkey/internal/cbor"
	"github.com/panelkit/passkey/internal/cose"
)

// BeginRegistration starts an enrollment ceremony for userID: it mints a
// single-use challenge, persists it, and returns the creation options the
// client-side ceremony needs. Credentials the user already holds are listed
// in excludeCredentials so the authenticator refuses to re-enroll them.
func (e *Engine) BeginRegistration(ctx context.Context, userID string) (*RegistrationOptions, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	existing, err := e.credentials.GetCredentialsForUser(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	challenge, err := e.challenges.Issue(ctx, challengeRecord{
		Ceremony:       CeremonyRegistration,
		UserID:         user.UserID,
		RelyingPartyID: e.config.RelyingParty.ID,
		Origin:         e.config.RelyingParty.Origin,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegistrationBegin)
	e.emitAudit(ctx, auditEventRegistrationBegin, user.UserID, "", nil, nil)

	return &RegistrationOptions{
		Challenge: challenge,
		RelyingParty: RelyingPartyEntity{
			ID:   e.config.RelyingParty.ID,
			Name: e.config.RelyingParty.Name,
		},
		User: UserEntity{
			ID:          base64.RawURLEncoding.EncodeToString([]byte(user.UserID)),
			Name:        user.Username,
			DisplayName: user.DisplayName,
		},
		PubKeyCredParams: []CredentialParameter{
			{Type: "public-key", Alg: AlgES256},
			{Type: "public-key", Alg: AlgRS256},
		},
		Timeout:            e.config.Challenge.CeremonyTimeout.Milliseconds(),
		ExcludeCredentials: descriptorsFor(existing),
		AuthenticatorSelection: AuthenticatorSelection{
			UserVerification: "required",
		},
		Attestation: "none",
	}, nil
}

// FinishRegistration validates a submitted registration response and
// persists the new credential. The challenge is consumed exactly once,
// success or failure; a failed attempt can never be replayed.
func (e *Engine) FinishRegistration(ctx context.Context, response *RegistrationResponse) (*RegistrationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if response == nil {
		return nil, ErrMalformedInput
	}

	result, err := e.finishRegistration(ctx, response)
	if err != nil {
		e.metricInc(MetricRegistrationFailure)
		e.emitAudit(ctx, auditEventRegistrationFailure, "", response.CredentialID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistrationSuccess, string(result.UserHandle), result.CredentialID, nil, nil)
	return result, nil
}

func (e *Engine) finishRegistration(ctx context.Context, response *RegistrationResponse) (*RegistrationResult, error) {
	cd, err := parseClientData(response.ClientDataJSON)
	if err != nil {
		return nil, err
	}

	record, lookupErr := e.challenges.Lookup(ctx, cd.Challenge)
	// Consume before validating anything else. Deleting on every outcome
	// is the single-use invariant that closes replay of a captured
	// response.
	found, _ := e.challenges.Consume(ctx, cd.Challenge)
	if lookupErr != nil || !found {
		e.metricInc(MetricChallengeReplay)
		return nil, ErrChallengeExpiredOrConsumed
	}
	if record.Ceremony != CeremonyRegistration {
		return nil, ErrChallengeExpiredOrConsumed
	}

	if err := verifyClientData(cd, clientDataTypeCreate, record); err != nil {
		return nil, err
	}

	obj, _, err := cbor.Decode(response.AttestationObject, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation object: %v", ErrMalformedInput, err)
	}
	objMap, ok := obj.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("%w: attestation object is not a map", ErrMalformedInput)
	}
	authDataBytes, ok := objMap["authData"].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: attestation object missing authData", ErrMalformedInput)
	}

	ad, err := authdata.Parse(authDataBytes, record.RelyingPartyID, true)
	if err != nil {
		return nil, mapWireError(err)
	}

	// Import the embedded key purely to prove it is well-formed and
	// inside the supported algorithm set. A key that cannot be imported
	// now could never verify an assertion later, so it is never
	// persisted.
	keyValue, _, err := cbor.Decode(ad.PublicKeyBytes, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: embedded key: %v", ErrMalformedInput, err)
	}
	keyMap, ok := keyValue.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("%w: embedded key is not a map", ErrMalformedInput)
	}
	key, err := cose.Import(keyMap, response.AlgorithmHint)
	if err != nil {
		return nil, mapWireError(err)
	}

	credentialID := base64.RawURLEncoding.EncodeToString(ad.CredentialID)
	if response.CredentialID != "" && response.CredentialID != credentialID {
		return nil, fmt.Errorf("%w: credential id disagrees with attested data", ErrClientDataInvalid)
	}

	if err := e.rejectBoundCredential(ctx, credentialID); err != nil {
		return nil, err
	}

	credential := CredentialRecord{
		CredentialID:   credentialID,
		OwnerUserID:    record.UserID,
		PublicKey:      base64.RawURLEncoding.EncodeToString(ad.PublicKeyBytes),
		Algorithm:      key.Algorithm(),
		SignCounter:    ad.SignCount,
		RelyingPartyID: record.RelyingPartyID,
		Transports:     response.Transports,
		UserHandle:     []byte(record.UserID),
		DeviceLabel:    response.DeviceLabel,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.credentials.InsertCredential(ctx, credential); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	return &RegistrationResult{
		CredentialID: credential.CredentialID,
		PublicKey:    credential.PublicKey,
		Algorithm:    credential.Algorithm,
		SignCounter:  credential.SignCounter,
		UserHandle:   credential.UserHandle,
		Transports:   credential.Transports,
	}, nil
}

// rejectBoundCredential enforces global credential-id uniqueness before the
// insert. Stores may report absence either as a nil record or as
// ErrCredentialNotFound.
func (e *Engine) rejectBoundCredential(ctx context.Context, credentialID string) error {
	existing, err := e.credentials.GetCredentialByID(ctx, credentialID)
	switch {
	case err == nil && existing != nil:
		return ErrCredentialAlreadyBound
	case err == nil || errors.Is(err, ErrCredentialNotFound):
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
}

func descriptorsFor(credentials []CredentialRecord) []CredentialDescriptor {
	if len(credentials) == 0 {
		return nil
	}
	out := make([]CredentialDescriptor, 0, len(credentials))
	for _, c := range credentials {
		out = append(out, CredentialDescriptor{
			Type:       "public-key",
			ID:         c.CredentialID,
			Transports: c.Transports,
		})
	}
	return out
}
