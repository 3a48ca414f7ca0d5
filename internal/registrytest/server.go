// Package registrytest runs an in-memory session registry for tests: the
// REST surface under /api, bearer-token auth and the terminal websocket.
// Tests seed users, sessions and schedules directly and inspect what the
// client did through request counters and recorded terminal frames.
package registrytest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type contextKey string

const uidContextKey contextKey = "uid"

type user struct {
	UID      string
	Username string
	Hash     string
	Admin    bool
}

// Session is a seeded or created session record.
type Session struct {
	ID           string
	Owner        string
	FirstMessage string
	UpdatedAt    time.Time
	Status       string
	Alive        bool
}

// Schedule is a stored schedule record.
type Schedule struct {
	ID      string
	Owner   string
	Name    string
	Content string
	Cron    string
	Workdir string
	Enabled bool
}

type failure struct {
	status int
	detail string
}

type Server struct {
	*httptest.Server

	keyByID bool
	tokens  *tokenStore

	mu        sync.Mutex
	users     map[string]*user
	sessions  []*Session
	schedules []*Schedule
	requests  map[string]int
	failNext  map[string]failure
	terms     map[string][]*TermConn
	dials     map[string]int

	conns chan *TermConn
}

type Option func(*Server)

// WithScheduleKeyByID makes /schedules/{key} address schedules by id
// instead of name.
func WithScheduleKeyByID() Option {
	return func(s *Server) { s.keyByID = true }
}

// New starts a registry and closes it when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		tokens:   newTokenStore(),
		users:    make(map[string]*user),
		requests: make(map[string]int),
		failNext: make(map[string]failure),
		terms:    make(map[string][]*TermConn),
		dials:    make(map[string]int),
		conns:    make(chan *TermConn, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base URL a registry client should be pointed at.
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/ws/terminal/{id}", s.handleTerminal)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/sessions", s.handleListSessions)
			r.Post("/sessions", s.handleCreateSession)
			r.Post("/sessions/{id}/resume", s.handleResumeSession)
			r.Delete("/sessions/{id}", s.handleCloseSession)
			r.Delete("/sessions/{id}/delete", s.handleDeleteSession)

			r.Get("/schedules", s.handleListSchedules)
			r.Post("/schedules", s.handleCreateSchedule)
			r.Put("/schedules/{key}", s.handleUpdateSchedule)
			r.Delete("/schedules/{key}", s.handleDeleteSchedule)

			r.With(s.requireAdmin).Get("/admin/overview", s.handleAdminOverview)
		})
	})
	return r
}

func requestKey(method, path string) string {
	return method + " " + strings.TrimPrefix(path, "/api")
}

// record counts requests and serves injected failures.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := requestKey(r.Method, r.URL.Path)
		s.mu.Lock()
		s.requests[key]++
		f, failing := s.failNext[key]
		delete(s.failNext, key)
		s.mu.Unlock()
		if failing {
			writeError(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		uid, ok := s.tokens.Get(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), uidContextKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		u := s.users[currentUID(r)]
		s.mu.Unlock()
		if u == nil || !u.Admin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUID(r *http.Request) string {
	uid, _ := r.Context().Value(uidContextKey).(string)
	return uid
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// AddUser registers an account that can log in with password.
func (s *Server) AddUser(t testing.TB, uid, username, password string, admin bool) {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	s.mu.Lock()
	s.users[uid] = &user{UID: uid, Username: username, Hash: hash, Admin: admin}
	s.mu.Unlock()
}

// IssueToken returns a valid bearer token for uid without a login request.
func (s *Server) IssueToken(t testing.TB, uid string) string {
	t.Helper()
	token, err := s.tokens.Create(uid)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	return token
}

// RevokeTokens invalidates every issued token, as a registry restart would.
func (s *Server) RevokeTokens() {
	s.tokens.DeleteAll()
}

// AddSession seeds a session. An empty ID gets a fresh uuid.
func (s *Server) AddSession(sess Session) Session {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.sessions = append(s.sessions, &sess)
	s.mu.Unlock()
	return sess
}

// Session returns a copy of the stored record.
func (s *Server) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findSession("", id); sess != nil {
		return *sess, true
	}
	return Session{}, false
}

// Sessions returns uid's sessions in creation order.
func (s *Server) Sessions(uid string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.Owner == uid {
			out = append(out, *sess)
		}
	}
	return out
}

// AddSchedule seeds a schedule. An empty ID gets a fresh uuid.
func (s *Server) AddSchedule(sch Schedule) Schedule {
	if sch.ID == "" {
		sch.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.schedules = append(s.schedules, &sch)
	s.mu.Unlock()
	return sch
}

// Schedules returns uid's schedules in creation order.
func (s *Server) Schedules(uid string) []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Schedule
	for _, sch := range s.schedules {
		if sch.Owner == uid {
			out = append(out, *sch)
		}
	}
	return out
}

// Requests returns how many requests hit method and path (path relative to
// /api, e.g. "/sessions").
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[requestKey(method, "/api"+path)]
}

// FailNext makes the next request to method and path answer status with
// a {"detail": detail} body.
func (s *Server) FailNext(method, path string, status int, detail string) {
	s.mu.Lock()
	s.failNext[requestKey(method, "/api"+path)] = failure{status: status, detail: detail}
	s.mu.Unlock()
}

// findSession must be called with s.mu held. An empty owner matches any.
func (s *Server) findSession(owner, id string) *Session {
	for _, sess := range s.sessions {
		if sess.ID == id && (owner == "" || sess.Owner == owner) {
			return sess
		}
	}
	return nil
}

// findSchedule must be called with s.mu held.
func (s *Server) findSchedule(owner, key string) *Schedule {
	for _, sch := range s.schedules {
		if sch.Owner != owner {
			continue
		}
		if (s.keyByID && sch.ID == key) || (!s.keyByID && sch.Name == key) {
			return sch
		}
	}
	return nil
}
