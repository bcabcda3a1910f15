package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"
	"golang.org/x/oauth2"
)

// ErrNoCredential is returned by Token when neither reuse, refresh nor login
// produced a usable access token.
var ErrNoCredential = errors.New("credential: no usable credential")

// Credential is the access/refresh token pair owned by a Manager.
// An empty string means the token is absent.
//
// The expiry fields hold lifetimes reported by the issuer, zero when unknown.
// A JWT is always judged by its exp claim; the fields decide only for opaque
// tokens.
type Credential struct {
	AccessToken   string
	RefreshToken  string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

// Manager owns one Credential and keeps it usable. It reuses a valid access
// token, refreshes it when the refresh token is still alive, and falls back to
// a full login otherwise. It is safe for concurrent access.
type Manager struct {
	issuer Issuer

	mu    sync.RWMutex // guards state
	state Credential

	// acquire is a one-slot semaphore serializing refresh and login so that
	// callers discovering an expired token together trigger a single issuer
	// call. Waiters give up when their context ends.
	acquire chan struct{}

	ctx          context.Context // used by Token, which has no context parameter
	expiryLeeway time.Duration
	now          func() time.Time
	verifier     Verifier
	logger       glog.Logger
}

// Option is a functional option for configuring Manager.
type Option func(*Manager)

// WithLogger sets the logger for refresh and login events.
// If not set, no logging will occur.
func WithLogger(logger glog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSeed pre-populates the credential, e.g. with tokens persisted by the caller.
func WithSeed(accessToken, refreshToken string) Option {
	return func(m *Manager) {
		m.state = Credential{AccessToken: accessToken, RefreshToken: refreshToken}
	}
}

// WithCredential pre-populates the full credential, including reported
// expiries for opaque tokens.
func WithCredential(c Credential) Option {
	return func(m *Manager) {
		m.state = c
	}
}

// WithExpiryLeeway treats access tokens as expired this long before their exp
// claim. Default is zero.
func WithExpiryLeeway(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.expiryLeeway = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithVerifier requires access tokens to pass signature verification in
// addition to the expiry check.
func WithVerifier(v Verifier) Option {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithContext sets the context used by Token. Cancellation is stripped so
// that a finished caller does not poison later token requests.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) {
		if ctx != nil {
			m.ctx = context.WithoutCancel(ctx)
		}
	}
}

// NewManager creates a manager that mints and refreshes through issuer.
func NewManager(issuer Issuer, opts ...Option) *Manager {
	m := &Manager{
		issuer:  issuer,
		ctx:     context.Background(),
		now:     time.Now,
		logger:  glog.Nop(),
		acquire: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// AuthorizationValue returns a usable access token, refreshing or logging in
// when necessary. It never fails: when no token can be obtained it returns
// false and the caller proceeds unauthenticated.
//
// Recovery escalates within a call and never repeats a step: reuse, then
// refresh (only while the refresh token is unexpired), then login.
func (m *Manager) AuthorizationValue(ctx context.Context) (string, bool) {
	if ctx == nil {
		ctx = m.ctx
	}

	// Fast path: valid token without taking the acquisition lock
	if token, ok := m.current(); ok {
		return token, true
	}

	select {
	case m.acquire <- struct{}{}:
		defer func() { <-m.acquire }()
	case <-ctx.Done():
		m.logger.Debug("credential: gave up waiting for token acquisition", "error", ctx.Err())
		return "", false
	}

	// Double-check after acquiring the lock (another goroutine might have refreshed)
	if token, ok := m.current(); ok {
		return token, true
	}

	if refreshToken, reported := m.refreshToken(); refreshToken != "" && !expiredAt(refreshToken, reported, m.now(), 0) {
		m.refresh(ctx, refreshToken)
	}
	if token, ok := m.current(); ok {
		return token, true
	}

	m.login(ctx)
	if token, ok := m.current(); ok {
		return token, true
	}

	m.logger.Warn("credential: no usable credential, proceeding unauthenticated")
	return "", false
}

// Token implements oauth2.TokenSource so the manager can back an oauth2.Transport.
func (m *Manager) Token() (*oauth2.Token, error) {
	access, ok := m.AuthorizationValue(m.ctx)
	if !ok {
		return nil, ErrNoCredential
	}

	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if expiry, ok := expiresAt(access, m.Credential().AccessExpiry); ok {
		token.Expiry = expiry
	}
	return token, nil
}

// Credential returns a snapshot of the current token pair.
func (m *Manager) Credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Invalidate drops the access token so the next call escalates to refresh or
// login, e.g. after the remote side rejected it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.state.AccessToken = ""
	m.state.AccessExpiry = time.Time{}
	m.mu.Unlock()
}

// Valid reports whether the current access token is usable right now.
func (m *Manager) Valid() bool {
	_, ok := m.current()
	return ok
}

func (m *Manager) current() (string, bool) {
	m.mu.RLock()
	token, reported := m.state.AccessToken, m.state.AccessExpiry
	m.mu.RUnlock()

	if token == "" || expiredAt(token, reported, m.now(), m.expiryLeeway) {
		return "", false
	}
	if m.verifier != nil {
		if err := m.verifier.Verify(token); err != nil {
			m.logger.Debug("credential: access token failed verification", "error", err)
			return "", false
		}
	}
	return token, true
}

func (m *Manager) refreshToken() (string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.RefreshToken, m.state.RefreshExpiry
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) {
	pair, err := m.issuer.Refresh(ctx, refreshToken)
	if err != nil {
		m.logger.Error("credential: failed to refresh access token", "error", err)
		return
	}

	m.mu.Lock()
	if pair.AccessToken != "" {
		m.state.AccessToken = pair.AccessToken
		m.state.AccessExpiry = pair.AccessExpiry
	}
	if pair.RefreshToken != "" {
		m.state.RefreshToken = pair.RefreshToken
		m.state.RefreshExpiry = pair.RefreshExpiry
	}
	m.mu.Unlock()

	m.logger.Debug("credential: refreshed access token",
		"expires", expiryString(pair.AccessToken, pair.AccessExpiry),
		"rotated", pair.RefreshToken != "")
}

func (m *Manager) login(ctx context.Context) {
	pair, err := m.issuer.Login(ctx)
	if err != nil {
		m.logger.Error("credential: failed to create new authentication token", "error", err)
		return
	}

	m.mu.Lock()
	m.state = Credential{
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		AccessExpiry:  pair.AccessExpiry,
		RefreshExpiry: pair.RefreshExpiry,
	}
	m.mu.Unlock()

	m.logger.Debug("credential: obtained new access token", "expires", expiryString(pair.AccessToken, pair.AccessExpiry))
}

func expiryString(token string, reported time.Time) string {
	expiry, ok := expiresAt(token, reported)
	if !ok {
		return "unknown"
	}
	return expiry.Format(time.RFC3339)
}
