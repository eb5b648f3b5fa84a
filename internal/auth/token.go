package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// ErrEmptySecret is returned by NewAuthority when no secret is configured.
var ErrEmptySecret = errors.New("auth: link token secret is empty")

// Authority issues and verifies link tokens. A link token is
// HMAC-SHA256(secret, sessionID.String()) in unpadded URL-safe base64, so it
// can be recomputed by anyone holding the secret and revoked only by deleting
// the session.
type Authority struct {
	secret []byte
}

func NewAuthority(secret []byte) (*Authority, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Authority{secret: s}, nil
}

// Issue returns the link token for sessionID.
func (a *Authority) Issue(sessionID uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(a.mac(sessionID))
}

// Verify reports whether token is the link token for sessionID. The
// comparison runs in constant time.
func (a *Authority) Verify(sessionID uuid.UUID, token string) bool {
	got, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	return hmac.Equal(got, a.mac(sessionID))
}

func (a *Authority) mac(sessionID uuid.UUID) []byte {
	h := hmac.New(sha256.New, a.secret)
	h.Write([]byte(sessionID.String()))
	return h.Sum(nil)
}
