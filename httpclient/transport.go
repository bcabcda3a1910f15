package httpclient

import (
	"context"
	"net/http"

	"github.com/goliatone/go-logger/glog"
)

// AuthorizationSource supplies the bearer token for outgoing requests.
// A false second value means no credential is available right now.
// *credential.Manager implements it.
type AuthorizationSource interface {
	AuthorizationValue(ctx context.Context) (string, bool)
}

// AuthTransport is an http.RoundTripper that adds an
// "Authorization: Bearer <token>" header to outgoing HTTP requests.
//
// It asks Source on every round trip, so each retry attempt carries the
// freshest credential. When Source has nothing to offer the request is sent
// without the header, unless Required is set.
type AuthTransport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Source provides access tokens. A nil Source sends every request unauthenticated.
	Source AuthorizationSource

	// Required fails the request with ErrCredentialRequired instead of
	// sending it unauthenticated.
	Required bool

	// Logger receives a debug line for unauthenticated requests. Optional.
	Logger glog.Logger
}

// RoundTrip implements http.RoundTripper interface.
// The token lookup respects the request context's cancellation and deadline.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var (
		token string
		ok    bool
	)
	if t.Source != nil {
		token, ok = t.Source.AuthorizationValue(req.Context())
	}

	if !ok {
		if t.Required {
			closeBody(req)
			return nil, credentialRequiredError()
		}
		if t.Logger != nil {
			t.Logger.Debug("httpclient: sending request without credential",
				"method", req.Method, "url", req.URL.Redacted())
		}
		return base.RoundTrip(req)
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+token)

	return base.RoundTrip(reqClone)
}

// NewAuthTransport creates a new AuthTransport with the given source.
// The base transport defaults to http.DefaultTransport if not specified.
func NewAuthTransport(src AuthorizationSource, base http.RoundTripper) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &AuthTransport{
		Base:   base,
		Source: src,
	}
}

// A RoundTripper must always close the request body, even on error.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
