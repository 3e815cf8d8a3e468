package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTokenIssuer = "portal-auth"

var ErrInvalidSessionToken = errors.New("invalid session token")

type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionSigner signs the opaque cookie value. The token only carries the
// session id; the user binding lives in the session store.
type SessionSigner struct {
	secret []byte
}

func NewSessionSigner(secret string) *SessionSigner {
	return &SessionSigner{secret: []byte(secret)}
}

func (s *SessionSigner) Sign(sessionID string, expiresAt time.Time) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("sign session token: empty session id")
	}
	now := time.Now()
	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    sessionTokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse returns the session id of a valid, unexpired token.
func (s *SessionSigner) Parse(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidSessionToken
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionTokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidSessionToken
	}
	return claims.ID, nil
}
