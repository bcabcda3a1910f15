package resource

import (
	"fmt"

	"github.com/AmmannChristian/go-resx/config"
	"github.com/AmmannChristian/go-resx/credential"
	"github.com/AmmannChristian/go-resx/httpclient"
)

// NewFromConfig wires a complete client from cfg: an issuer, a credential
// manager owned by this client, and a retrying pipeline.
func NewFromConfig[T any](cfg config.Config, opts ...Option) (*Client[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := collectOptions(opts)

	issuer := o.issuer
	if issuer == nil {
		var err error
		if issuer, err = newIssuer(cfg); err != nil {
			return nil, err
		}
	}

	managerOpts := append([]credential.Option{credential.WithLogger(o.logger)}, o.managerOpts...)
	manager := credential.NewManager(issuer, managerOpts...)

	builder := pipelineBuilder(cfg).
		WithCredentials(manager).
		WithRetry(cfg.MaxRetries, cfg.Backoff()).
		WithRateLimit(cfg.RateLimit, cfg.RateBurst).
		WithLogger(o.logger)
	if cfg.RequireCredential {
		builder.RequireCredential()
	}
	for _, fn := range o.builderOpts {
		fn(builder)
	}

	pipeline, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("resource: build pipeline: %w", err)
	}

	client := New[T](pipeline, cfg.ResourcePath, WithLogger(o.logger))
	client.manager = manager
	return client, nil
}

// pipelineBuilder carries the transport settings shared by the pipeline and
// the issuer.
func pipelineBuilder(cfg config.Config) *httpclient.Builder {
	builder := httpclient.NewBuilder().
		WithBaseURL(cfg.BaseURL).
		WithTimeout(cfg.Timeout())
	if cfg.TLSEnabled() {
		builder.WithTLS(cfg.TLSCAFile, cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	return builder
}

func newIssuer(cfg config.Config) (credential.Issuer, error) {
	// Issuer calls must not go through the authenticating transport.
	issuerHTTP, err := pipelineBuilder(cfg).BuildHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("resource: build issuer client: %w", err)
	}

	var user *credential.UserCredentials
	if cfg.HasUserCredentials() {
		user = &credential.UserCredentials{Email: cfg.Email, Password: cfg.Password}
	}

	switch cfg.Issuer {
	case config.IssuerClientCredentials:
		return credential.NewOAuth2Issuer(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Scopes, user).
			SetHTTPClient(issuerHTTP), nil
	default:
		if user == nil {
			return nil, fmt.Errorf("resource: email and password are required for the %s issuer", cfg.Issuer)
		}
		return credential.NewHTTPIssuer(cfg.BaseURL, *user,
			credential.WithLoginPath(cfg.LoginPath),
			credential.WithRefreshPath(cfg.RefreshPath),
			credential.WithHTTPClient(issuerHTTP),
		), nil
	}
}
