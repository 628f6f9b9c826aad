package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/propcore/internal/permission"
)

// DefaultTokenTTL is used when IssueToken is given a non-positive TTL.
const DefaultTokenTTL = 15 * time.Minute

// minSecretLength matches the config validation rule for security.jwt.secret.
const minSecretLength = 32

var (
	// ErrTokenInvalid is returned for tokens that fail signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrSecretTooShort is returned when signing with a weak secret.
	ErrSecretTooShort = errors.New("auth: signing secret too short")
)

// Claims are the JWT claims of a propcore API token. The subject is the
// user ID and Groups are the permission groups checked by object
// permission managers.
type Claims struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups,omitempty"`
}

// User returns the permission identity carried by the claims.
func (c *Claims) User() permission.User {
	return permission.User{ID: c.Subject, Groups: slices.Clone(c.Groups)}
}

// IssueToken creates a signed HS256 token for user.
func IssueToken(user permission.User, secret string, ttl time.Duration) (string, error) {
	if len(secret) < minSecretLength {
		return "", ErrSecretTooShort
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrTokenInvalid)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Groups: slices.Clone(user.Groups),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns its claims. It checks the
// signature, the algorithm, expiry and the subject.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
