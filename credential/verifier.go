package credential

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-logger/glog"
)

// Verifier checks the signature of an issued access token. Expiry is checked
// separately by the manager.
type Verifier interface {
	Verify(token string) error
}

// JWKSVerifier verifies tokens against the issuer's published JWKS.
// It caches public keys and refreshes them in the background.
type JWKSVerifier struct {
	jwks *keyfunc.JWKS
}

// NewJWKSVerifier creates a verifier backed by jwksURL.
//
// Parameters:
//   - jwksURL: URL to the JWKS endpoint (e.g., "https://auth.example.com/.well-known/jwks.json")
//   - httpClient: HTTP client for fetching JWKS (optional, uses http.DefaultClient if nil)
//   - cacheTTL: Duration to cache JWKS before refreshing (0 uses default of 1 hour)
//   - logger: Optional logger for refresh errors (can be nil)
func NewJWKSVerifier(jwksURL string, httpClient *http.Client, cacheTTL time.Duration, logger glog.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("credential: JWKS URL is required")
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	if logger == nil {
		logger = glog.Nop()
	}

	options := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("credential: JWKS refresh error", "error", err)
		},
		RefreshInterval:   cacheTTL,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
		Client:            httpClient,
	}

	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, fmt.Errorf("credential: failed to initialize JWKS: %w", err)
	}

	return &JWKSVerifier{jwks: jwks}, nil
}

// Verify checks the token signature against the cached key set.
func (v *JWKSVerifier) Verify(token string) error {
	parsed, err := jwt.Parse(token, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name,
			jwt.SigningMethodES384.Name,
			jwt.SigningMethodES512.Name,
		}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return fmt.Errorf("credential: signature verification failed: %w", err)
	}
	if !parsed.Valid {
		return errors.New("credential: token is invalid")
	}
	return nil
}

// Close stops the background key refresh.
func (v *JWKSVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
