package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 30 * time.Minute

// ErrInvalidToken covers every parse failure: malformed structure,
// bad signature, expired token. Callers outside this package must not
// learn which one it was.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenCodec issues and validates signed bearer tokens. It keeps no
// state; the token string is the whole credential.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{secret: secret, ttl: ttl}
}

// TTL returns the issuance lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token asserting userID, expiring ttl from now.
func (c *TokenCodec) Issue(userID int64) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return encoded, nil
}

// Parse verifies the signature and expiry of tokenStr and returns its
// claims. Expiry is checked with zero leeway: a token whose exp equals
// the current instant is already expired.
func (c *TokenCodec) Parse(tokenStr string) (Claims, error) {
	var registered jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &registered, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(registered.Subject, 10, 64)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		UserID:    userID,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}
