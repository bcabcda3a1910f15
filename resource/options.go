package resource

import (
	"github.com/goliatone/go-logger/glog"

	"github.com/AmmannChristian/go-resx/credential"
	"github.com/AmmannChristian/go-resx/httpclient"
)

// Option configures clients built by New and NewFromConfig.
type Option func(*options)

type options struct {
	logger      glog.Logger
	issuer      credential.Issuer
	managerOpts []credential.Option
	builderOpts []func(*httpclient.Builder)
}

// WithLogger sets the logger shared by the client, its manager and its pipeline.
func WithLogger(logger glog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIssuer replaces the issuer NewFromConfig would derive from the configuration.
func WithIssuer(issuer credential.Issuer) Option {
	return func(o *options) {
		o.issuer = issuer
	}
}

// WithManagerOptions passes extra options to the credential manager built by NewFromConfig.
func WithManagerOptions(opts ...credential.Option) Option {
	return func(o *options) {
		o.managerOpts = append(o.managerOpts, opts...)
	}
}

// WithBuilder customizes the pipeline builder after NewFromConfig applied the configuration.
func WithBuilder(fn func(*httpclient.Builder)) Option {
	return func(o *options) {
		if fn != nil {
			o.builderOpts = append(o.builderOpts, fn)
		}
	}
}

func collectOptions(opts []Option) options {
	o := options{logger: glog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
