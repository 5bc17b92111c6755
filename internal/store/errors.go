package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrQuestionNotFound      = fmt.Errorf("question %w", ErrNotFound)
	ErrAnswerNotFound        = fmt.Errorf("answer %w", ErrNotFound)
	ErrPrayerRequestNotFound = fmt.Errorf("prayer request %w", ErrNotFound)
	ErrUserNotFound          = fmt.Errorf("user %w", ErrNotFound)

	ErrDuplicateUser = errors.New("user already exists")
	ErrUsernameTaken = fmt.Errorf("username taken: %w", ErrDuplicateUser)
	ErrEmailTaken    = fmt.Errorf("email in use: %w", ErrDuplicateUser)

	ErrInvalidAuthor = errors.New("author id required")

	// ErrInvalidText is returned when Postgres rejects text bytes, such as NUL.
	ErrInvalidText = errors.New("text contains characters that cannot be stored")
)

// StorageError wraps a backend fault. Callers surface it, the store never retries.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if _, ok := pgError(err, pgCharacterNotInRepertoire); ok {
		return fmt.Errorf("%s: %w", op, ErrInvalidText)
	}
	return &StorageError{Op: op, Err: err}
}

const (
	pgCharacterNotInRepertoire = "22021"
	pgForeignKeyViolation      = "23503"
	pgUniqueViolation          = "23505"
)

func pgError(err error, code string) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr, true
	}
	return nil, false
}

// duplicateUserErr translates a unique violation on users into the matching sentinel.
func duplicateUserErr(err error) (error, bool) {
	pgErr, ok := pgError(err, pgUniqueViolation)
	if !ok {
		return nil, false
	}
	if strings.Contains(pgErr.ConstraintName, "email") {
		return ErrEmailTaken, true
	}
	return ErrUsernameTaken, true
}
