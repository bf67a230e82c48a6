package passkey

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/panelkit/passkey/internal/authdata"
	"github.com/panelkit/passkey/internal/cbor"
	"github.com/panelkit/passkey/internal/cose"
)

// BeginAuthentication starts an assertion ceremony for userID. The allow
// list names the user's enrolled credentials; rememberDevice is carried
// through the challenge and stretches the session token TTL on success.
func (e *Engine) BeginAuthentication(ctx context.Context, userID string, rememberDevice bool) (*AuthenticationOptions, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	enrolled, err := e.credentials.GetCredentialsForUser(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	challenge, err := e.challenges.Issue(ctx, challengeRecord{
		Ceremony:       CeremonyAuthentication,
		UserID:         user.UserID,
		RelyingPartyID: e.config.RelyingParty.ID,
		Origin:         e.config.RelyingParty.Origin,
		RememberDevice: rememberDevice,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricAuthenticationBegin)
	e.emitAudit(ctx, auditEventAuthenticationBegin, user.UserID, "", nil, nil)

	return &AuthenticationOptions{
		Challenge:        challenge,
		RelyingPartyID:   e.config.RelyingParty.ID,
		Timeout:          e.config.Challenge.CeremonyTimeout.Milliseconds(),
		AllowCredentials: descriptorsFor(enrolled),
		UserVerification: "required",
	}, nil
}

// FinishAuthentication validates a submitted assertion. The authenticated
// user is derived from the matched credential record, never from client
// input; the challenge is consumed exactly once regardless of outcome.
func (e *Engine) FinishAuthentication(ctx context.Context, response *AuthenticationResponse) (*AuthenticationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if response == nil {
		return nil, ErrMalformedInput
	}

	result, err := e.finishAuthentication(ctx, response)
	if err != nil {
		e.metricInc(MetricAuthenticationFailure)
		e.emitAudit(ctx, auditEventAuthenticationFailed, "", response.CredentialID, err, nil)
		return nil, err
	}

	e.metricInc(MetricAuthenticationSuccess)
	e.emitAudit(ctx, auditEventAuthenticationOK, result.UserID, result.CredentialID, nil, nil)
	return result, nil
}

func (e *Engine) finishAuthentication(ctx context.Context, response *AuthenticationResponse) (*AuthenticationResult, error) {
	cd, err := parseClientData(response.ClientDataJSON)
	if err != nil {
		return nil, err
	}

	record, lookupErr := e.challenges.Lookup(ctx, cd.Challenge)
	// Single-use: delete before validating. Concurrent attempts against
	// the same challenge race here and exactly one proceeds.
	found, _ := e.challenges.Consume(ctx, cd.Challenge)
	if lookupErr != nil || !found {
		e.metricInc(MetricChallengeReplay)
		return nil, ErrChallengeExpiredOrConsumed
	}
	if record.Ceremony != CeremonyAuthentication {
		return nil, ErrChallengeExpiredOrConsumed
	}

	if err := verifyClientData(cd, clientDataTypeGet, record); err != nil {
		return nil, err
	}

	credential, err := e.credentials.GetCredentialByID(ctx, response.CredentialID)
	if err != nil || credential == nil {
		return nil, ErrCredentialNotFound
	}

	if len(credential.UserHandle) > 0 && len(response.UserHandle) > 0 &&
		!bytes.Equal(credential.UserHandle, response.UserHandle) {
		return nil, ErrUserHandleMismatch
	}

	rpID := credential.RelyingPartyID
	if rpID == "" {
		rpID = e.config.RelyingParty.ID
	}
	ad, err := authdata.Parse(response.AuthenticatorData, rpID, false)
	if err != nil {
		return nil, mapWireError(err)
	}

	key, err := e.importStoredKey(credential)
	if err != nil {
		return nil, err
	}

	// The authenticator signs authenticatorData || SHA-256(clientDataJSON).
	clientDataHash := sha256.Sum256(response.ClientDataJSON)
	payload := make([]byte, 0, len(response.AuthenticatorData)+len(clientDataHash))
	payload = append(payload, response.AuthenticatorData...)
	payload = append(payload, clientDataHash[:]...)

	if err := key.Verify(payload, response.Signature); err != nil {
		return nil, ErrSignatureInvalid
	}

	result := &AuthenticationResult{
		UserID:         credential.OwnerUserID,
		CredentialID:   credential.CredentialID,
		NewSignCounter: ad.SignCount,
		UserHandle:     credential.UserHandle,
		RememberDevice: record.RememberDevice,
	}

	// A nonzero stored counter must strictly advance; failure to do so is
	// the signature of a cloned credential. A stored zero means this
	// authenticator class does not count and is never compared. Either
	// way the store only ever moves forward, to max(reported, stored).
	if credential.SignCounter > 0 && ad.SignCount <= credential.SignCounter {
		result.CounterSuspicious = true
		e.metricInc(MetricCounterSuspicious)
		e.emitAudit(ctx, auditEventCounterSuspicious, credential.OwnerUserID, credential.CredentialID, nil, map[string]string{
			"stored":   strconv.FormatUint(uint64(credential.SignCounter), 10),
			"reported": strconv.FormatUint(uint64(ad.SignCount), 10),
		})
	}
	next := max(ad.SignCount, credential.SignCounter)
	result.NewSignCounter = next
	if err := e.credentials.UpdateCredentialUsage(ctx, credential.CredentialID, next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	if e.tokens != nil {
		token, err := e.tokens.Issue(result.UserID, result.CredentialID, result.RememberDevice)
		if err != nil {
			return nil, fmt.Errorf("session token: %w", err)
		}
		result.SessionToken = token
	}

	return result, nil
}

// importStoredKey rebuilds the verification key from the persisted COSE
// bytes, using the stored algorithm as the hint for keys that omit alg.
func (e *Engine) importStoredKey(credential *CredentialRecord) (cose.PublicKey, error) {
	raw, err := decodeBase64URL(credential.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: stored public key encoding", ErrMalformedInput)
	}
	value, _, err := cbor.Decode(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: stored public key: %v", ErrMalformedInput, err)
	}
	keyMap, ok := value.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("%w: stored public key is not a map", ErrMalformedInput)
	}
	key, err := cose.Import(keyMap, credential.Algorithm)
	if err != nil {
		return nil, mapWireError(err)
	}
	return key, nil
}
