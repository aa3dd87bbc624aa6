package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")

	// ErrTokenRevoked is kept distinct from ErrInvalidToken for
	// diagnostics; the HTTP layer collapses both to 401.
	ErrTokenRevoked = errors.New("token has been revoked")
)

// UserStore is the persistence collaborator the service needs.
// CreateUser must enforce username uniqueness and return
// ErrUsernameTaken on conflict; lookups return ErrUserNotFound when
// no row matches.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
}

// Service composes the password hasher, token codec, session registry
// and user store into the register/login/logout/profile flows.
type Service struct {
	store    UserStore
	hasher   PasswordHasher
	tokens   *TokenCodec
	sessions SessionRegistry
}

func NewService(store UserStore, hasher PasswordHasher, tokens *TokenCodec, sessions SessionRegistry) *Service {
	return &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
	}
}

// Register creates a user and logs them straight in. The lookup is a
// fast path only; the unique index on users.username is the
// authoritative guard against concurrent registrations, surfaced by
// the store as ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, username, password string) (string, User, error) {
	username = strings.TrimSpace(username)

	_, err := s.store.UserByUsername(ctx, username)
	if err == nil {
		return "", User{}, ErrUsernameTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		return "", User{}, fmt.Errorf("check username: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return "", User{}, ErrUsernameTaken
		}
		return "", User{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", User{}, err
	}

	return token, user, nil
}

// Login checks the credentials and issues a fresh token. An unknown
// username and a wrong password collapse to the same
// ErrInvalidCredentials so callers cannot enumerate accounts.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)

	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("fetch user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		// A corrupt stored hash is an internal failure, not a
		// credentials mismatch.
		return "", fmt.Errorf("verify password for user %d: %w", user.ID, err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(user.ID)
}

// Logout revokes the presented token. The token is not validated
// first: revoking an arbitrary string is harmless and logout must
// work even for tokens this process can no longer parse. Returns
// false when the token was already revoked.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	expiresAt := time.Now().UTC().Add(s.tokens.TTL())
	if claims, err := s.tokens.Parse(token); err == nil {
		expiresAt = claims.ExpiresAt
	}

	fresh, err := s.sessions.Revoke(ctx, token, expiresAt)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}

	return fresh, nil
}

// Authenticate runs the token state machine: parse (signature +
// expiry), then the revocation check. Order matters only for the
// error reported; a revoked token is rejected no matter what.
func (s *Service) Authenticate(ctx context.Context, token string) (Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Claims{}, err
	}

	revoked, err := s.sessions.IsRevoked(ctx, token)
	if err != nil {
		return Claims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Claims{}, ErrTokenRevoked
	}

	return claims, nil
}

// UserProfile loads the user a validated token points at. The subject
// may have been deleted since issuance, in which case the caller gets
// ErrUserNotFound rather than an authentication failure.
func (s *Service) UserProfile(ctx context.Context, userID int64) (User, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("fetch user %d: %w", userID, err)
	}

	return user, nil
}
