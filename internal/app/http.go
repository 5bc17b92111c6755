package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadderzzz/UmmahHub/internal/auth"
	"github.com/shadderzzz/UmmahHub/internal/authpw"
	"github.com/shadderzzz/UmmahHub/internal/export"
	"github.com/shadderzzz/UmmahHub/internal/search"
	"github.com/shadderzzz/UmmahHub/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	limiter    *writeLimiter
}

// NewHTTPServer builds the API server. writeRate is the number of writes per
// second allowed for one client; zero disables rate limiting.
func NewHTTPServer(service *Service, corsOrigin string, writeRate float64, writeBurst int) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		limiter:    newWriteLimiter(writeRate, writeBurst),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.routes())
}

type principalHandler func(w http.ResponseWriter, r *http.Request, actor auth.Principal)

func (s *HTTPServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	mux.HandleFunc("POST /api/users/register", s.limitByAddr(s.handleRegister))
	mux.HandleFunc("POST /api/users/login", s.limitByAddr(s.handleLogin))
	mux.HandleFunc("POST /api/users/logout", s.handleLogout)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("PATCH /api/users/me", s.write(s.handleRename))

	mux.HandleFunc("GET /api/forum/{category}/questions", s.read(s.handleListQuestions))
	mux.HandleFunc("POST /api/forum/{category}/questions", s.write(s.handleAskQuestion))
	mux.HandleFunc("GET /api/forum/{category}/questions/{questionID}", s.read(s.handleGetQuestion))
	mux.HandleFunc("DELETE /api/forum/{category}/questions/{questionID}", s.write(s.handleDeleteQuestion))
	mux.HandleFunc("POST /api/forum/{category}/questions/{questionID}/answers", s.write(s.handlePostAnswer))
	mux.HandleFunc("DELETE /api/forum/{category}/questions/{questionID}/answers/{answerID}", s.write(s.handleDeleteAnswer))
	mux.HandleFunc("GET /api/forum/{category}/questions/{questionID}/export", s.read(s.handleExportQuestion))

	mux.HandleFunc("GET /api/duas", s.read(s.handleListDuas))
	mux.HandleFunc("POST /api/duas", s.write(s.handlePostDua))
	mux.HandleFunc("POST /api/duas/{requestID}/seen", s.write(s.handleToggleDuaSeen))
	mux.HandleFunc("DELETE /api/duas/{requestID}", s.write(s.handleDeleteDua))

	mux.HandleFunc("GET /api/search", s.read(s.handleSearch))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if allowed := allowedMethods(mux, r); len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	return mux
}

var routeMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}

// allowedMethods lists the methods some route other than the catch-all
// accepts for the request path.
func allowedMethods(mux *http.ServeMux, r *http.Request) []string {
	var allowed []string
	for _, method := range routeMethods {
		if method == r.Method {
			continue
		}
		alt := r.Clone(r.Context())
		alt.Method = method
		if _, pattern := mux.Handler(alt); pattern != "" && pattern != "/" {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

// read requires a session.
func (s *HTTPServer) read(next principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.requirePrincipal(w, r)
		if !ok {
			return
		}
		next(w, r, actor)
	}
}

// write requires a session and charges the acting user's rate limit.
func (s *HTTPServer) write(next principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.requirePrincipal(w, r)
		if !ok {
			return
		}
		if !s.limiter.Allow("user:" + strconv.FormatInt(actor.UserID, 10)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
			return
		}
		next(w, r, actor)
	}
}

func (s *HTTPServer) limitByAddr(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow("addr:" + clientAddr(r)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	actor, err := s.service.Resolver().CurrentPrincipal(r)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("resolve session")
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please log in", nil)
		return auth.Principal{}, false
	}
	return actor, true
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.service.Categories()})
}

// Accounts

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		First    string `json:"first"`
		Last     string `json:"last"`
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	userID, err := s.service.Register(r.Context(), authpw.RegisterRequest{
		FirstName: body.First,
		LastName:  body.Last,
		Email:     body.Email,
		Username:  body.Username,
		Password:  body.Password,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"userId": userID})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token, user, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.Resolver().CookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.service.SessionTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"username": user.Username,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(r.Context(), s.service.Resolver().Token(r)); err != nil {
		log.Warn().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("logout")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.Resolver().CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	actor, err := s.service.Resolver().CurrentPrincipal(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "username": actor.Username})
}

func (s *HTTPServer) handleRename(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	username, err := s.service.Rename(r.Context(), actor, body.Username)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "username": username})
}

// Forum

func (s *HTTPServer) handleListQuestions(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	views, err := s.service.ListThreads(r.Context(), r.PathValue("category"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *HTTPServer) handleAskQuestion(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	var body struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	category := r.PathValue("category")
	id, err := s.service.AskQuestion(r.Context(), actor, category, body.Title, body.Body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeCreated(w, questionPath(category, id))
}

func (s *HTTPServer) handleGetQuestion(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	view, err := s.service.GetThread(r.Context(), r.PathValue("category"), questionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDeleteQuestion(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	category := r.PathValue("category")
	if err := s.service.DeleteQuestion(r.Context(), actor, category, questionID); err != nil {
		s.fail(w, err)
		return
	}
	writeRedirect(w, "/api/forum/"+category+"/questions")
}

func (s *HTTPServer) handlePostAnswer(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	category := r.PathValue("category")
	if _, err := s.service.PostAnswer(r.Context(), actor, category, questionID, body.Answer); err != nil {
		s.fail(w, err)
		return
	}
	writeCreated(w, questionPath(category, questionID))
}

func (s *HTTPServer) handleDeleteAnswer(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	answerID, ok := pathID(w, r, "answerID")
	if !ok {
		return
	}
	category := r.PathValue("category")
	if err := s.service.DeleteAnswer(r.Context(), actor, category, questionID, answerID); err != nil {
		s.fail(w, err)
		return
	}
	writeRedirect(w, questionPath(category, questionID))
}

func (s *HTTPServer) handleExportQuestion(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	format := export.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	result, err := s.service.ExportThread(r.Context(), r.PathValue("category"), questionID, format)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// Duas

func (s *HTTPServer) handleListDuas(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	board, err := s.service.Duas(r.Context(), actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *HTTPServer) handlePostDua(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	var body struct {
		Text string `json:"dua_text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if _, err := s.service.PostDua(r.Context(), actor, body.Text); err != nil {
		s.fail(w, err)
		return
	}
	writeCreated(w, "/api/duas")
}

func (s *HTTPServer) handleToggleDuaSeen(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	seen, err := s.service.ToggleDuaSeen(r.Context(), actor, requestID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seen": seen})
}

func (s *HTTPServer) handleDeleteDua(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	if err := s.service.DeleteDua(r.Context(), actor, requestID); err != nil {
		s.fail(w, err)
		return
	}
	writeRedirect(w, "/api/duas")
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	values := r.URL.Query()
	q := search.Query{
		Text:           strings.TrimSpace(values.Get("q")),
		FilterType:     search.ResultType(strings.TrimSpace(values.Get("type"))),
		FilterCategory: strings.TrimSpace(values.Get("category")),
	}
	for _, param := range []struct {
		name   string
		target *int
	}{{"limit", &q.Limit}, {"offset", &q.Offset}} {
		raw := values.Get(param.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", param.name+" must be a non-negative integer", map[string]any{"field": param.name})
			return
		}
		*param.target = n
	}
	resp, err := s.service.Search(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	if corsOrigin != "" {
		header.Set("Access-Control-Allow-Origin", corsOrigin)
		// Browsers refuse credentials alongside a wildcard origin.
		if corsOrigin != "*" {
			header.Set("Access-Control-Allow-Credentials", "true")
		}
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeCreated and writeRedirect point the client at the view to show next.
func writeCreated(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "location": location})
}

func writeRedirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "location": location})
}

func questionPath(category string, questionID int64) string {
	return fmt.Sprintf("/api/forum/%s/questions/%d", category, questionID)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", name+" must be a positive integer", map[string]any{"field": name})
		return 0, false
	}
	return id, true
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
