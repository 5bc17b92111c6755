// Package authpw provides username/password accounts.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/shadderzzz/UmmahHub/internal/store"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit
	maxUsernameLength = 64
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// ValidationError describes input rejected before any storage access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type UserStore interface {
	CreateUser(ctx context.Context, user store.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	RenameUser(ctx context.Context, id int64, username string) error
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(s UserStore) *Service {
	return &Service{store: s, cost: bcrypt.DefaultCost}
}

// NewServiceWithCost is NewService with a custom bcrypt cost, for tests.
func NewServiceWithCost(s UserStore, cost int) *Service {
	return &Service{store: s, cost: cost}
}

type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Username  string
	Password  string
}

// Register creates an account. Duplicate usernames and e-mails come back as
// store.ErrUsernameTaken and store.ErrEmailTaken.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	email := strings.TrimSpace(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email || hasNUL(email) {
		return 0, invalid("email", "Please enter a valid email address.")
	}
	username, err := normalizeUsername(req.Username)
	if err != nil {
		return 0, err
	}
	if len(req.Password) < minPasswordLength {
		return 0, invalid("password", fmt.Sprintf("Password must be at least %d characters long.", minPasswordLength))
	}
	if len(req.Password) > maxPasswordLength {
		return 0, invalid("password", fmt.Sprintf("Password must be at most %d bytes long.", maxPasswordLength))
	}
	if hasNUL(req.FirstName) || hasNUL(req.LastName) {
		return 0, invalid("name", "Names must not contain NUL characters.")
	}

	// The unique index still decides races; this only skips hashing for a known address.
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return 0, store.ErrEmailTaken
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return 0, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.CreateUser(ctx, store.User{
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: string(hash),
	})
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// Login checks the password and returns the account.
func (s *Service) Login(ctx context.Context, username, password string) (store.User, error) {
	if strings.TrimSpace(username) == "" || password == "" || hasNUL(username) {
		return store.User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrUserNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Rename changes the username of an existing account.
func (s *Service) Rename(ctx context.Context, userID int64, username string) (string, error) {
	normalized, err := normalizeUsername(username)
	if err != nil {
		return "", err
	}
	if err := s.store.RenameUser(ctx, userID, normalized); err != nil {
		return "", fmt.Errorf("rename user: %w", err)
	}
	return normalized, nil
}

func normalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", invalid("username", "Username is required.")
	}
	if len(username) > maxUsernameLength {
		return "", invalid("username", fmt.Sprintf("Username must be at most %d characters.", maxUsernameLength))
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return "", invalid("username", "Username must not contain spaces.")
	}
	if hasNUL(username) {
		return "", invalid("username", "Username must not contain NUL characters.")
	}
	return username, nil
}

// hasNUL reports whether s holds a byte Postgres TEXT columns reject.
func hasNUL(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}
