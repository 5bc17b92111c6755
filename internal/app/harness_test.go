package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shadderzzz/UmmahHub/internal/email"
	"github.com/shadderzzz/UmmahHub/internal/export"
	"github.com/shadderzzz/UmmahHub/internal/session"
	"github.com/shadderzzz/UmmahHub/internal/thread"
)

const testPassword = "password123"

type fakeMailer struct {
	configured bool
	answers    chan sentAnswer
	welcomes   chan string
}

type sentAnswer struct {
	to   string
	data email.AnswerNotificationData
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		configured: true,
		answers:    make(chan sentAnswer, 10),
		welcomes:   make(chan string, 10),
	}
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendAnswerNotification(to string, data email.AnswerNotificationData) error {
	f.answers <- sentAnswer{to: to, data: data}
	return nil
}

func (f *fakeMailer) SendWelcome(to string, _ email.WelcomeData) error {
	f.welcomes <- to
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	err      error
	archived []thread.View
}

func (f *fakeArchiver) Archive(_ context.Context, view thread.View, _ string) ([]export.ArchivedObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.archived = append(f.archived, view)
	return []export.ArchivedObject{{Key: "threads/x.html"}}, nil
}

type testEnv struct {
	t       *testing.T
	store   *memStore
	service *Service
	handler http.Handler
}

type envOption func(*Deps, *serverOpts)

type serverOpts struct {
	corsOrigin string
	writeRate  float64
	writeBurst int
}

func withMailer(m *fakeMailer) envOption {
	return func(d *Deps, _ *serverOpts) { d.Mailer = m }
}

func withArchiver(a *fakeArchiver) envOption {
	return func(d *Deps, _ *serverOpts) { d.Archiver = a }
}

func withCORSOrigin(origin string) envOption {
	return func(_ *Deps, o *serverOpts) { o.corsOrigin = origin }
}

// authorIndex records reindex requests and ignores everything else.
type authorIndex struct {
	nopIndex
	mu        sync.Mutex
	reindexed []int64
}

func (a *authorIndex) ReindexAuthor(authorID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reindexed = append(a.reindexed, authorID)
}

func withSearch(idx searchIndex) envOption {
	return func(d *Deps, _ *serverOpts) { d.Search = idx }
}

func withWriteLimit(rate float64, burst int) envOption {
	return func(_ *Deps, o *serverOpts) {
		o.writeRate = rate
		o.writeBurst = burst
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := newMemStore()
	deps := Deps{
		Store:         mem,
		Sessions:      session.NewRedisStoreWithClient(client, 10*time.Minute),
		SessionCookie: "ummahhub_session",
		SessionTTL:    10 * time.Minute,
		BcryptCost:    bcrypt.MinCost,
	}
	server := serverOpts{corsOrigin: "*"}
	for _, opt := range opts {
		opt(&deps, &server)
	}
	svc := New(deps)
	return &testEnv{
		t:       t,
		store:   mem,
		service: svc,
		handler: NewHTTPServer(svc, server.corsOrigin, server.writeRate, server.writeBurst).Handler(),
	}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// signUp registers username and returns a session token for it.
func (e *testEnv) signUp(username string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/users/register", "", map[string]string{
		"first":    "Test",
		"last":     "User",
		"email":    username + "@example.com",
		"username": username,
		"password": testPassword,
	})
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	return e.login(username)
}

func (e *testEnv) login(username string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/users/login", "", map[string]string{
		"username": username,
		"password": testPassword,
	})
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[map[string]any](e.t, rr)
	token, _ := resp["token"].(string)
	require.NotEmpty(e.t, token)
	return token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode[map[string]any](t, rr)
	code, _ := resp["code"].(string)
	return code
}

var errArchiveDown = errors.New("archive unavailable")
