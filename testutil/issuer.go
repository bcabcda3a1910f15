package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// IssuerServer is a fake credential issuer serving POST /auth/login and
// POST /auth/refresh with freshly minted HS256 tokens.
type IssuerServer struct {
	*httptest.Server

	tb testing.TB

	mu            sync.Mutex
	loginCalls    int
	refreshCalls  int
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotate        bool
	loginStatus   int
	refreshStatus int
	loginDelay    time.Duration
	loginBodies   []map[string]string
	refreshBodies []map[string]string
}

// NewIssuerServer starts a fake issuer. Access tokens live for an hour and
// refresh tokens for a day unless changed.
func NewIssuerServer(tb testing.TB) *IssuerServer {
	tb.Helper()

	s := &IssuerServer{
		tb:         tb,
		accessTTL:  time.Hour,
		refreshTTL: 24 * time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/refresh", s.handleRefresh)
	s.Server = NewLocalHTTPServer(tb, mux)

	return s
}

// SetAccessTTL changes the lifetime of minted access tokens. A negative value
// mints tokens that are already expired.
func (s *IssuerServer) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// RotateRefreshTokens makes the refresh endpoint return a new refresh token.
func (s *IssuerServer) RotateRefreshTokens(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = rotate
}

// FailLogin makes the login endpoint answer with status (0 restores success).
func (s *IssuerServer) FailLogin(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginStatus = status
}

// FailRefresh makes the refresh endpoint answer with status (0 restores success).
func (s *IssuerServer) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// DelayLogin holds every login response for d.
func (s *IssuerServer) DelayLogin(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginDelay = d
}

// LoginCalls returns the number of login requests served.
func (s *IssuerServer) LoginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

// RefreshCalls returns the number of refresh requests served.
func (s *IssuerServer) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// LoginBodies returns the decoded login request bodies.
func (s *IssuerServer) LoginBodies() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.loginBodies...)
}

// RefreshBodies returns the decoded refresh request bodies.
func (s *IssuerServer) RefreshBodies() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.refreshBodies...)
}

func (s *IssuerServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := decodeBody(r)

	s.mu.Lock()
	s.loginCalls++
	s.loginBodies = append(s.loginBodies, body)
	status, delay := s.loginStatus, s.loginDelay
	accessTTL, refreshTTL := s.accessTTL, s.refreshTTL
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  MintToken(s.tb, "login", time.Now().Add(accessTTL)),
		"refresh_token": MintToken(s.tb, "refresh", time.Now().Add(refreshTTL)),
	})
}

func (s *IssuerServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := decodeBody(r)

	s.mu.Lock()
	s.refreshCalls++
	s.refreshBodies = append(s.refreshBodies, body)
	status, rotate := s.refreshStatus, s.rotate
	accessTTL, refreshTTL := s.accessTTL, s.refreshTTL
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	resp := map[string]string{
		"access_token": MintToken(s.tb, "refreshed", time.Now().Add(accessTTL)),
	}
	if rotate {
		resp["refresh_token"] = MintToken(s.tb, "rotated", time.Now().Add(refreshTTL))
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(r *http.Request) map[string]string {
	body := map[string]string{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
