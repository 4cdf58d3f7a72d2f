package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/gorilla/securecookie"
)

// SessionTokenSize is the number of random bytes in a session token.
const SessionTokenSize = 32

// GenerateSessionToken returns a fresh bearer token, hex encoded.
func GenerateSessionToken() (string, error) {
	return common.MakeRandHexString(SessionTokenSize)
}

// HashSessionToken returns the value stored as the session id.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CookieCodec signs (and optionally encrypts) the session token carried in
// the session cookie.
type CookieCodec struct {
	sc *securecookie.SecureCookie
}

// NewCookieCodec builds a codec. blockKey may be empty, in which case the
// cookie is signed but not encrypted.
func NewCookieCodec(hashKey, blockKey []byte, maxAge time.Duration) *CookieCodec {
	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(maxAge / time.Second))
	return &CookieCodec{sc: sc}
}

func (c *CookieCodec) Encode(token string) (string, error) {
	return c.sc.Encode(common.SessionCookieName, token)
}

// Decode returns common.ErrInvalidToken for cookies that were tampered with,
// signed with another key or are older than the codec's max age.
func (c *CookieCodec) Decode(value string) (string, error) {
	var token string
	if err := c.sc.Decode(common.SessionCookieName, value, &token); err != nil {
		return "", common.ErrInvalidToken
	}
	return token, nil
}
