package passkey

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Client data ceremony type strings, fixed by the protocol.
const (
	clientDataTypeCreate = "webauthn.create"
	clientDataTypeGet    = "webauthn.get"
)

// collectedClientData is the contextual binding the client serializes into
// every response: which ceremony it ran, against which challenge, from
// which origin.
type collectedClientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin,omitempty"`
}

func parseClientData(raw []byte) (*collectedClientData, error) {
	var cd collectedClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, fmt.Errorf("%w: client data: %v", ErrMalformedInput, err)
	}
	return &cd, nil
}

// verifyClientData checks the three bindings against the stored challenge
// record: ceremony type, challenge value (compared as decoded bytes, in
// constant time), and exact origin. Any mismatch is ErrClientDataInvalid —
// a stale or forged response.
func verifyClientData(cd *collectedClientData, wantType string, record *challengeRecord) error {
	if cd.Type != wantType {
		return fmt.Errorf("%w: ceremony type %q", ErrClientDataInvalid, cd.Type)
	}

	got, err := decodeBase64URL(cd.Challenge)
	if err != nil {
		return fmt.Errorf("%w: challenge encoding", ErrClientDataInvalid)
	}
	want, err := decodeBase64URL(record.Challenge)
	if err != nil {
		return fmt.Errorf("%w: challenge encoding", ErrClientDataInvalid)
	}
	if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
		return fmt.Errorf("%w: challenge mismatch", ErrClientDataInvalid)
	}

	if cd.Origin != record.Origin {
		return fmt.Errorf("%w: origin %q", ErrClientDataInvalid, cd.Origin)
	}

	return nil
}

// decodeBase64URL accepts both padded and unpadded base64url, which client
// stacks disagree on.
func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
