package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultLoginPath is the login endpoint relative to the issuer base URL.
	DefaultLoginPath = "auth/login"
	// DefaultRefreshPath is the refresh endpoint relative to the issuer base URL.
	DefaultRefreshPath = "auth/refresh"

	defaultIssuerTimeout = 5 * time.Second
	maxIssuerBodyBytes   = 1 << 20
)

// Issuer text codes attached to go-errors values.
const (
	TextCodeIssuerRejected    = "CREDENTIAL_ISSUER_REJECTED"
	TextCodeIssuerUnavailable = "CREDENTIAL_ISSUER_UNAVAILABLE"
	TextCodeIssuerResponse    = "CREDENTIAL_ISSUER_BAD_RESPONSE"
)

// TokenPair is what an issuer hands back from a login or refresh call.
// RefreshToken is empty when the issuer does not rotate it.
//
// AccessExpiry and RefreshExpiry carry lifetimes reported next to the tokens
// (expires_in, refresh_expires_in). They are zero when the issuer sent none and
// only matter for tokens that are not JWTs.
type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

// tokenResponse is the JSON body of the login and refresh endpoints.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
}

func (r tokenResponse) pair(now time.Time) TokenPair {
	return TokenPair{
		AccessToken:   r.AccessToken,
		RefreshToken:  r.RefreshToken,
		AccessExpiry:  expiryAfter(now, r.ExpiresIn),
		RefreshExpiry: expiryAfter(now, r.RefreshExpiresIn),
	}
}

// expiryAfter converts a lifetime in seconds into an absolute time. A
// non-positive lifetime means unknown.
func expiryAfter(now time.Time, seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}

// Issuer mints and refreshes credentials.
type Issuer interface {
	Login(ctx context.Context) (TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// UserCredentials are the login credentials posted to the login endpoint.
type UserCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HTTPIssuer talks to an issuer exposing JSON login and refresh endpoints.
type HTTPIssuer struct {
	baseURL     string
	loginPath   string
	refreshPath string
	credentials UserCredentials
	httpClient  *http.Client
}

// IssuerOption configures an HTTPIssuer.
type IssuerOption func(*HTTPIssuer)

// WithLoginPath overrides the login endpoint path (default "auth/login").
func WithLoginPath(path string) IssuerOption {
	return func(i *HTTPIssuer) {
		if path != "" {
			i.loginPath = path
		}
	}
}

// WithRefreshPath overrides the refresh endpoint path (default "auth/refresh").
func WithRefreshPath(path string) IssuerOption {
	return func(i *HTTPIssuer) {
		if path != "" {
			i.refreshPath = path
		}
	}
}

// WithHTTPClient sets the client used for issuer calls.
// It must not carry the authenticating transport of the resource pipeline.
func WithHTTPClient(client *http.Client) IssuerOption {
	return func(i *HTTPIssuer) {
		if client != nil {
			i.httpClient = client
		}
	}
}

// NewHTTPIssuer creates an issuer posting to {baseURL}/{loginPath} and
// {baseURL}/{refreshPath}.
func NewHTTPIssuer(baseURL string, creds UserCredentials, opts ...IssuerOption) *HTTPIssuer {
	i := &HTTPIssuer{
		baseURL:     strings.TrimRight(baseURL, "/"),
		loginPath:   DefaultLoginPath,
		refreshPath: DefaultRefreshPath,
		credentials: creds,
		httpClient:  &http.Client{Timeout: defaultIssuerTimeout},
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Login posts the configured email and password and returns the minted pair.
func (i *HTTPIssuer) Login(ctx context.Context) (TokenPair, error) {
	pair, err := i.post(ctx, i.loginPath, i.credentials)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.AccessToken == "" {
		return TokenPair{}, issuerError(nil, "credential: login response has no access_token", http.StatusBadGateway)
	}
	return pair, nil
}

// Refresh exchanges refreshToken for a new access token.
func (i *HTTPIssuer) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return i.post(ctx, i.refreshPath, map[string]string{"refresh_token": refreshToken})
}

func (i *HTTPIssuer) post(ctx context.Context, path string, payload any) (TokenPair, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TokenPair{}, goerrors.Wrap(err, goerrors.CategoryInternal, "credential: encode issuer request")
	}

	endpoint := i.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "credential: build issuer request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return TokenPair{}, issuerError(err, "credential: issuer request failed", http.StatusBadGateway)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIssuerBodyBytes))
	if err != nil {
		return TokenPair{}, issuerError(err, "credential: read issuer response", http.StatusBadGateway)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenPair{}, issuerError(nil,
			fmt.Sprintf("credential: issuer returned HTTP %d on %s", resp.StatusCode, path),
			resp.StatusCode)
	}

	var decoded tokenResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return TokenPair{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "credential: decode issuer response").
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeIssuerResponse)
	}

	return decoded.pair(time.Now()), nil
}

func issuerError(source error, message string, code int) *goerrors.Error {
	category := goerrors.CategoryExternal
	textCode := TextCodeIssuerUnavailable
	switch code {
	case http.StatusUnauthorized:
		category, textCode = goerrors.CategoryAuth, TextCodeIssuerRejected
	case http.StatusForbidden:
		category, textCode = goerrors.CategoryAuthz, TextCodeIssuerRejected
	}

	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	return err.WithCode(code).WithTextCode(textCode)
}

// IsRejected reports whether err is an issuer refusal (401/403) rather than an
// availability problem.
func IsRejected(err error) bool {
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == TextCodeIssuerRejected
}
