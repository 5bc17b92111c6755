package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shadderzzz/UmmahHub/internal/auth"
	"github.com/shadderzzz/UmmahHub/internal/category"
	"github.com/shadderzzz/UmmahHub/internal/ownership"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"category", fmt.Errorf("resolve: %w", category.ErrNotFound), http.StatusBadRequest, "CATEGORY_NOT_FOUND"},
		{"question missing", fmt.Errorf("get question: %w", store.ErrQuestionNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"prayer missing", store.ErrPrayerRequestNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", ownership.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"invalid input", invalidInput("title", "Title is required"), http.StatusBadRequest, "INVALID_INPUT"},
		{"unauthenticated", auth.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"rejected text", fmt.Errorf("insert answer: %w", store.ErrInvalidText), http.StatusBadRequest, "INVALID_INPUT"},
		{"username taken", store.ErrUsernameTaken, http.StatusConflict, "USERNAME_TAKEN"},
		{"storage", &store.StorageError{Op: "list questions", Err: errors.New("conn reset")}, http.StatusInternalServerError, "STORAGE_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newWriteLimiter(1, 2)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
}

func TestWriteLimiterDisabled(t *testing.T) {
	limiter := newWriteLimiter(0, 5)
	assert.Nil(t, limiter)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("a"))
	}
}

func TestWriteLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newWriteLimiter(1, 1)
	limiter.now = func() time.Time { return now }
	for i := 0; i < limiterSweepAbove; i++ {
		limiter.Allow(fmt.Sprintf("client-%d", i))
	}
	now = now.Add(limiterIdleTTL + time.Second)
	limiter.Allow("fresh")
	assert.Len(t, limiter.clients, 1)
}

func TestSearchEndpointValidatesFilters(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp("alice")

	tests := []struct {
		query  string
		status int
		code   string
	}{
		{"q=barzakh", http.StatusOK, ""},
		{"q=barzakh&category=afterlife&type=answer&limit=5&offset=5", http.StatusOK, ""},
		{"q=barzakh&category=hereafter", http.StatusBadRequest, "CATEGORY_NOT_FOUND"},
		{"q=barzakh&type=comment", http.StatusBadRequest, "INVALID_INPUT"},
		{"q=barzakh&limit=-1", http.StatusBadRequest, "INVALID_INPUT"},
		{"q=barzakh&offset=x", http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := env.do(http.MethodGet, "/api/search?"+tt.query, alice, nil)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, rr))
				return
			}
			resp := decode[map[string]any](t, rr)
			assert.Equal(t, []any{}, resp["results"])
			assert.Equal(t, "barzakh", resp["query"])
		})
	}
}
