// Package auth resolves the acting user for a request from its session token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shadderzzz/UmmahHub/internal/session"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the acting user. Username is read fresh from users on every
// request, so a rename takes effect immediately.
type Principal struct {
	UserID   int64
	Username string
}

type SessionStore interface {
	Save(ctx context.Context, tokenHash string, userID int64) error
	Lookup(ctx context.Context, tokenHash string) (session.Data, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (store.User, error)
}

type Resolver struct {
	sessions   SessionStore
	users      UserLookup
	cookieName string
}

func NewResolver(sessions SessionStore, users UserLookup, cookieName string) *Resolver {
	return &Resolver{sessions: sessions, users: users, cookieName: cookieName}
}

func (r *Resolver) CookieName() string {
	return r.cookieName
}

// Token returns the bearer token, or the session cookie when no
// Authorization header is present.
func (r *Resolver) Token(req *http.Request) string {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if r.cookieName == "" {
		return ""
	}
	cookie, err := req.Cookie(r.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func (r *Resolver) CurrentPrincipal(req *http.Request) (Principal, error) {
	return r.PrincipalForToken(req.Context(), r.Token(req))
}

func (r *Resolver) PrincipalForToken(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	data, err := r.sessions.Lookup(ctx, HashToken(token))
	if errors.Is(err, session.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("lookup session: %w", err)
	}
	user, err := r.users.GetUserByID(ctx, data.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load session user: %w", err)
	}
	return Principal{UserID: user.ID, Username: user.Username}, nil
}

// Login opens a session for userID and returns the raw token.
func (r *Resolver) Login(ctx context.Context, userID int64) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := r.sessions.Save(ctx, HashToken(token), userID); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

func (r *Resolver) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := r.sessions.Revoke(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
