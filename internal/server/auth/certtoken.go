package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// CertClaims identifies a minted certificate for the public viewer.
type CertClaims struct {
	jwt.RegisteredClaims
	CertID int64  `json:"cid"`
	Digest string `json:"dig"`
}

// GenerateCertToken signs a verification token. A zero validity produces a
// token without expiry.
func GenerateCertToken(certID int64, digest string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	rc := jwt.RegisteredClaims{
		Subject:  digest,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if validity > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(validity))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CertClaims{
		RegisteredClaims: rc,
		CertID:           certID,
		Digest:           digest,
	})

	return token.SignedString(secretKey)
}

// ParseCertToken validates tokenString and returns its claims. Every
// failure, expiry included, wraps common.ErrInvalidToken.
func ParseCertToken(tokenString string, secretKey []byte) (*CertClaims, error) {
	claims := &CertClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", common.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.CertID == 0 || claims.Digest == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
