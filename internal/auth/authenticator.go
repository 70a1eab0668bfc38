package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/dmchat/internal/store"
)

var (
	// ErrUserNotFound is returned when the token subject has no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotPermitted is returned when the account may not use messaging.
	ErrNotPermitted = errors.New("user not permitted")
)

// UserFinder looks accounts up by id.
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*store.User, error)
}

// Authenticator resolves a bearer credential to a permitted account.
type Authenticator struct {
	tokens *TokenManager
	users  UserFinder
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens *TokenManager, users UserFinder) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate verifies the token and loads the account it names.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*store.User, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := a.users.FindUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if !u.Permitted {
		return nil, ErrNotPermitted
	}
	return u, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
