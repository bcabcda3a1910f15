package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
)

// Issuer kinds.
const (
	IssuerHTTP              = "http"
	IssuerClientCredentials = "client_credentials"
)

// Config describes one resource client: where the resource lives, how
// credentials are obtained and how the request pipeline behaves.
type Config struct {
	BaseURL      string `koanf:"base_url" mapstructure:"base_url" yaml:"base_url"`
	ResourcePath string `koanf:"resource_path" mapstructure:"resource_path" yaml:"resource_path"`
	LoginPath    string `koanf:"login_path" mapstructure:"login_path" yaml:"login_path"`
	RefreshPath  string `koanf:"refresh_path" mapstructure:"refresh_path" yaml:"refresh_path"`

	Issuer       string `koanf:"issuer" mapstructure:"issuer" yaml:"issuer"`
	Email        string `koanf:"email" mapstructure:"email" yaml:"email"`
	Password     string `koanf:"password" mapstructure:"password" yaml:"password"`
	TokenURL     string `koanf:"token_url" mapstructure:"token_url" yaml:"token_url"`
	ClientID     string `koanf:"client_id" mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret" yaml:"client_secret"`
	Scopes       string `koanf:"scopes" mapstructure:"scopes" yaml:"scopes"`

	TimeoutMS         int     `koanf:"timeout_ms" mapstructure:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries        int     `koanf:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`
	BackoffMS         int     `koanf:"backoff_ms" mapstructure:"backoff_ms" yaml:"backoff_ms"`
	RateLimit         float64 `koanf:"rate_limit" mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst         int     `koanf:"rate_burst" mapstructure:"rate_burst" yaml:"rate_burst"`
	RequireCredential bool    `koanf:"require_credential" mapstructure:"require_credential" yaml:"require_credential"`

	TLSCAFile   string `koanf:"tls_ca_file" mapstructure:"tls_ca_file" yaml:"tls_ca_file"`
	TLSCertFile string `koanf:"tls_cert_file" mapstructure:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file" mapstructure:"tls_key_file" yaml:"tls_key_file"`
}

// Default returns the configuration every loaded file is layered over.
func Default() Config {
	return Config{
		LoginPath:   "auth/login",
		RefreshPath: "auth/refresh",
		Issuer:      IssuerHTTP,
		TimeoutMS:   5000,
		MaxRetries:  3,
		BackoffMS:   1000,
		RateBurst:   1,
	}
}

// Validate reports the first problem found in c.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("config: base_url is required")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("config: base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if strings.Trim(c.ResourcePath, "/ ") == "" {
		return fmt.Errorf("config: resource_path is required")
	}

	switch c.Issuer {
	case IssuerHTTP:
		if strings.TrimSpace(c.LoginPath) == "" || strings.TrimSpace(c.RefreshPath) == "" {
			return fmt.Errorf("config: login_path and refresh_path are required for the http issuer")
		}
	case IssuerClientCredentials:
		if c.TokenURL == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("config: token_url, client_id and client_secret are required for the client_credentials issuer")
		}
	default:
		return fmt.Errorf("config: unknown issuer %q", c.Issuer)
	}

	if c.TimeoutMS < 0 || c.BackoffMS < 0 {
		return fmt.Errorf("config: timeout_ms and backoff_ms must not be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit must not be negative")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("config: tls_cert_file and tls_key_file must be set together")
	}

	return nil
}

// HasUserCredentials reports whether email and password are both set.
func (c Config) HasUserCredentials() bool {
	return c.Email != "" && c.Password != ""
}

// Timeout returns the per-attempt timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Backoff returns the delay before the first retry.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}

// TLSEnabled reports whether any TLS file is configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCAFile != "" || c.TLSCertFile != ""
}

// RawLoader produces an untyped configuration tree.
type RawLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// Load builds a Config from the values of loader layered over Default, then
// validates it.
func Load(ctx context.Context, loader RawLoader) (Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if loader == nil {
		loader = MapLoader(nil)
	}

	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}

	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(Default()),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
