package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrBadIdentity = errors.New("invalid identity token")

// IdentityVerifier checks the HS256 tokens minted by the identity service.
// The token subject must be the player id being claimed.
type IdentityVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewIdentityVerifier returns nil when secret is empty, which disables
// verification.
func NewIdentityVerifier(secret string) *IdentityVerifier {
	if secret == "" {
		return nil
	}
	return &IdentityVerifier{secret: []byte(secret), now: time.Now}
}

// Verify checks token was signed with the shared secret for playerID
func (v *IdentityVerifier) Verify(token, playerID string) error {
	if token == "" {
		return fmt.Errorf("%w: missing", ErrBadIdentity)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadIdentity, err)
	}
	if claims.Subject != playerID {
		return fmt.Errorf("%w: subject mismatch", ErrBadIdentity)
	}
	return nil
}

// Mint signs a token for playerID valid for ttl
func (v *IdentityVerifier) Mint(playerID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
