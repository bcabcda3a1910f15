package grpcclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/goliatone/go-logger/glog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Builder constructs gRPC client connections that carry credentials from an
// AuthorizationSource, over TLS by default.
type Builder struct {
	address string

	source   AuthorizationSource
	required bool

	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsServerName string

	logger   glog.Logger
	dialOpts []grpc.DialOption
}

// NewBuilder creates a new gRPC client builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAddress sets the server address (e.g., "server.example.com:9090").
func (b *Builder) WithAddress(address string) *Builder {
	b.address = address
	return b
}

// WithCredentials installs interceptors that attach the source's bearer
// token to every unary and streaming RPC.
func (b *Builder) WithCredentials(src AuthorizationSource) *Builder {
	b.source = src
	return b
}

// RequireCredential fails RPCs with codes.Unauthenticated when no credential
// is available instead of sending them without one.
func (b *Builder) RequireCredential() *Builder {
	b.required = true
	return b
}

// WithTLS configures TLS for the connection.
//
// Parameters:
//   - caFile: CA certificate for server verification (empty uses system roots)
//   - certFile, keyFile: client certificate pair for mTLS (optional, set both or neither)
//   - serverName: expected server name, overrides SNI (optional)
func (b *Builder) WithTLS(caFile, certFile, keyFile, serverName string) *Builder {
	b.tlsEnabled = true
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	b.tlsServerName = serverName
	return b
}

// WithLogger sets the logger for unauthenticated calls.
func (b *Builder) WithLogger(logger glog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithDialOptions adds custom gRPC dial options.
// These are applied last and may override the transport credentials.
func (b *Builder) WithDialOptions(opts ...grpc.DialOption) *Builder {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// Build creates the client connection. grpc.NewClient does not dial, so ctx
// only bounds setup work.
func (b *Builder) Build(ctx context.Context) (*grpc.ClientConn, error) {
	if b.address == "" {
		return nil, errors.New("grpcclient: server address is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grpcclient: %w", err)
	}

	var opts []grpc.DialOption

	if b.source != nil || b.required {
		logger := b.logger
		if logger == nil {
			logger = glog.Nop()
		}
		opts = append(opts,
			grpc.WithUnaryInterceptor(unaryInterceptor(b.source, b.required, logger)),
			grpc.WithStreamInterceptor(streamInterceptor(b.source, b.required, logger)),
		)
	}

	if b.tlsEnabled {
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("grpcclient: TLS config failed: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		// System roots, TLS 1.2 minimum; plaintext needs an explicit dial option.
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})))
	}

	opts = append(opts, b.dialOpts...)

	conn, err := grpc.NewClient(b.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: dial failed: %w", err)
	}

	return conn, nil
}

func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: b.tlsServerName,
	}

	if b.tlsCAFile != "" {
		pem, err := os.ReadFile(b.tlsCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	switch {
	case b.tlsCertFile != "" && b.tlsKeyFile != "":
		cert, err := tls.LoadX509KeyPair(b.tlsCertFile, b.tlsKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case b.tlsCertFile != "" || b.tlsKeyFile != "":
		return nil, errors.New("both TLS cert and key files must be provided for mTLS")
	}

	return tlsConfig, nil
}
