package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey is the HMAC key used by MintToken. The library never verifies
// HS256 signatures, so any key works; it is exported for servers that do.
var SigningKey = []byte("go-resx-test-signing-key")

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// MintToken returns an HS256 compact JWT for subject expiring at exp.
func MintToken(tb testing.TB, subject string, exp time.Time) string {
	tb.Helper()

	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Add(-time.Minute).Unix(),
		"exp": exp.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(SigningKey)
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// ValidToken mints a token that stays valid for an hour.
func ValidToken(tb testing.TB, subject string) string {
	tb.Helper()
	return MintToken(tb, subject, time.Now().Add(time.Hour))
}

// ExpiredToken mints a token that expired an hour ago.
func ExpiredToken(tb testing.TB, subject string) string {
	tb.Helper()
	return MintToken(tb, subject, time.Now().Add(-time.Hour))
}
