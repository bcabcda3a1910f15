package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-logger/glog"
	"golang.org/x/time/rate"
)

// Builder provides a fluent interface for constructing resource pipeline
// clients with credential injection, retry policy and TLS/mTLS support.
type Builder struct {
	baseURL string

	// Credential configuration
	source   AuthorizationSource
	required bool

	// TLS configuration
	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsSkipVerify bool

	// Retry configuration
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	sleep      Sleeper

	// HTTP client configuration
	baseTransport   http.RoundTripper
	followRedirects bool
	limiter         *rate.Limiter
	requestIDs      bool
	logger          glog.Logger
}

// NewBuilder creates a new client builder with the default retry policy:
// 5s per attempt, 3 retries, 1s initial backoff.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         DefaultAttemptTimeout,
		maxRetries:      DefaultMaxRetries,
		backoff:         DefaultBackoff,
		followRedirects: true,
		requestIDs:      true,
	}
}

// WithBaseURL sets the URL relative request paths are resolved against.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.baseURL = baseURL
	return b
}

// WithCredentials sets the source of bearer tokens, typically a *credential.Manager.
func (b *Builder) WithCredentials(src AuthorizationSource) *Builder {
	b.source = src
	return b
}

// RequireCredential fails requests when no credential is available instead of
// sending them unauthenticated.
func (b *Builder) RequireCredential() *Builder {
	b.required = true
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (optional, uses system roots if empty)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
func (b *Builder) WithTLS(caFile, certFile, keyFile string) *Builder {
	b.tlsEnabled = true
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification (NOT RECOMMENDED for production).
// This should only be used for testing or development purposes.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.tlsSkipVerify = true
	return b
}

// WithTimeout sets the timeout of a single attempt. A timed out attempt is
// retried like a network failure. Default is 5 seconds.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithRetry sets the retry budget and the initial backoff.
// The delay before retry n (0-indexed) is backoff * 2^n.
func (b *Builder) WithRetry(maxRetries int, backoff time.Duration) *Builder {
	b.maxRetries = maxRetries
	b.backoff = backoff
	return b
}

// WithSleeper replaces the timer used between retries. Intended for tests.
func (b *Builder) WithSleeper(sleep Sleeper) *Builder {
	b.sleep = sleep
	return b
}

// WithRateLimit throttles attempts to rps requests per second with the given burst.
// Zero or negative rps disables limiting.
func (b *Builder) WithRateLimit(rps float64, burst int) *Builder {
	if rps <= 0 {
		b.limiter = nil
		return b
	}
	if burst < 1 {
		burst = 1
	}
	b.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return b
}

// WithoutRequestID stops setting the X-Request-Id header.
func (b *Builder) WithoutRequestID() *Builder {
	b.requestIDs = false
	return b
}

// WithBaseTransport sets a custom base transport.
// This is useful for adding custom middleware or using a custom connection pool.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects disables automatic redirect following.
// By default, the client follows up to 10 redirects.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// WithLogger sets the logger for retries and request tracing.
func (b *Builder) WithLogger(logger glog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build constructs the client with the configured options.
//
// Returns:
//   - *Client: Configured client
//   - error: Error if configuration is invalid
func (b *Builder) Build() (*Client, error) {
	if b.maxRetries < 0 {
		return nil, errors.New("httpclient: max retries must not be negative")
	}
	if b.backoff < 0 {
		return nil, errors.New("httpclient: backoff must not be negative")
	}

	baseURL := strings.TrimRight(b.baseURL, "/")
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("httpclient: invalid base URL %q", b.baseURL)
		}
	}

	// The per-attempt context deadline bounds each round trip.
	httpClient, err := b.buildHTTPClient(0)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = glog.Nop()
	}

	sleep := b.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		maxRetries:     b.maxRetries,
		backoff:        b.backoff,
		attemptTimeout: b.timeout,
		limiter:        b.limiter,
		sleep:          sleep,
		requestIDs:     b.requestIDs,
		logger:         logger,
	}, nil
}

// BuildHTTPClient constructs a plain *http.Client with the credential
// transport and TLS settings but without the retry policy. The per-attempt
// timeout becomes the client timeout.
func (b *Builder) BuildHTTPClient() (*http.Client, error) {
	return b.buildHTTPClient(b.timeout)
}

func (b *Builder) buildHTTPClient(timeout time.Duration) (*http.Client, error) {
	// Build base transport
	transport := b.baseTransport
	if transport == nil {
		if httpTransport, ok := http.DefaultTransport.(*http.Transport); ok {
			httpTransport = httpTransport.Clone()

			if b.tlsEnabled || b.tlsSkipVerify {
				tlsConfig, err := b.buildTLSConfig()
				if err != nil {
					return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
				}
				httpTransport.TLSClientConfig = tlsConfig
			} else {
				// Set secure TLS defaults even when TLS is not explicitly configured
				httpTransport.TLSClientConfig = &tls.Config{
					MinVersion: tls.VersionTLS12,
				}
			}

			transport = httpTransport
		} else {
			// Fallback to whatever default transport is configured (e.g., a test stub)
			transport = http.DefaultTransport
		}
	}

	// Wrap with the credential transport if a source is set or one is required
	if b.source != nil || b.required {
		transport = &AuthTransport{
			Base:     transport,
			Source:   b.source,
			Required: b.required,
			Logger:   b.logger,
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	// Configure redirect policy
	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// buildTLSConfig constructs the TLS configuration for the HTTP client.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: b.tlsSkipVerify, // #nosec G402
	}

	// Load CA certificate for server verification
	if b.tlsCAFile != "" {
		caCert, err := os.ReadFile(b.tlsCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	// Load client certificate for mTLS (if both cert and key are provided)
	if b.tlsCertFile != "" && b.tlsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.tlsCertFile, b.tlsKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	} else if b.tlsCertFile != "" || b.tlsKeyFile != "" {
		return nil, errors.New("both TLS cert and key files must be provided for mTLS")
	}

	return tlsConfig, nil
}
