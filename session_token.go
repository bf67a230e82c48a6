package passkey

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTokenIssuer mints the short-lived JWT handed back after a verified
// authentication ceremony. The surrounding panel exchanges it for its own
// session; engines built without a signing key skip minting entirely.
type sessionTokenIssuer struct {
	cfg SessionTokenConfig
}

func newSessionTokenIssuer(cfg SessionTokenConfig) *sessionTokenIssuer {
	return &sessionTokenIssuer{cfg: cfg}
}

// sessionClaims binds the token to the user and the credential that
// authenticated them.
type sessionClaims struct {
	CredentialID string `json:"cid"`
	Remembered   bool   `json:"rmb,omitempty"`
	jwt.RegisteredClaims
}

func (i *sessionTokenIssuer) Issue(userID, credentialID string, rememberDevice bool) (string, error) {
	ttl := i.cfg.TTL
	if rememberDevice {
		ttl = i.cfg.RememberTTL
	}

	now := time.Now()
	claims := sessionClaims{
		CredentialID: credentialID,
		Remembered:   rememberDevice,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.cfg.SigningKey)
}
