package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shadderzzz/UmmahHub/internal/auth"
	"github.com/shadderzzz/UmmahHub/internal/authpw"
	"github.com/shadderzzz/UmmahHub/internal/category"
	"github.com/shadderzzz/UmmahHub/internal/export"
	"github.com/shadderzzz/UmmahHub/internal/ownership"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func invalidInput(field, message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_INPUT", message, map[string]any{"field": field})
}

// requireText rejects blank text and text Postgres cannot store.
func requireText(field, value, missing string) error {
	if strings.TrimSpace(value) == "" {
		return invalidInput(field, missing)
	}
	if strings.ContainsRune(value, 0) {
		return invalidInput(field, "Text must not contain NUL characters")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *authpw.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "INVALID_INPUT", validationErr.Message, map[string]any{"field": validationErr.Field}
	}
	switch {
	case errors.Is(err, category.ErrNotFound):
		return http.StatusBadRequest, "CATEGORY_NOT_FOUND", "Unknown category", nil
	case errors.Is(err, ownership.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Only the author can delete this", nil
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, store.ErrInvalidAuthor):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Please log in", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil
	case errors.Is(err, store.ErrUsernameTaken):
		return http.StatusConflict, "USERNAME_TAKEN", "Username is already taken. Please choose another.", nil
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN", "Email is already in use.", nil
	case errors.Is(err, store.ErrDuplicateUser):
		return http.StatusConflict, "DUPLICATE_USER", "Account already exists", nil
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrInvalidText):
		return http.StatusBadRequest, "INVALID_INPUT", "Text contains characters that cannot be stored", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "INVALID_INPUT", "Unsupported export format", map[string]any{"field": "format"}
	}
	var storageErr *store.StorageError
	if errors.As(err, &storageErr) {
		log.Error().Err(err).Str("op", storageErr.Op).Msg("storage failure")
		return http.StatusInternalServerError, "STORAGE_ERROR", "Storage error", nil
	}
	log.Error().Err(err).Msg("unhandled error")
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
