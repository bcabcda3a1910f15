package grpcclient

import (
	"context"

	"github.com/goliatone/go-logger/glog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthorizationSource supplies the bearer token attached to outgoing RPCs.
// *credential.Manager implements it.
type AuthorizationSource interface {
	AuthorizationValue(ctx context.Context) (string, bool)
}

// authorize returns ctx with "authorization: Bearer <token>" appended to the
// outgoing metadata. Without a token the context is returned unchanged, or an
// Unauthenticated status when required is set.
func authorize(ctx context.Context, src AuthorizationSource, required bool, logger glog.Logger, method string) (context.Context, error) {
	var (
		token string
		ok    bool
	)
	if src != nil {
		token, ok = src.AuthorizationValue(ctx)
	}
	if !ok {
		if required {
			return ctx, status.Error(codes.Unauthenticated, "grpcclient: no credential available")
		}
		if logger != nil {
			logger.Debug("grpcclient: calling without credential", "method", method)
		}
		return ctx, nil
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), nil
}

// UnaryClientInterceptor returns a unary interceptor that adds the current
// credential to request metadata. The lookup respects the RPC context.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(grpcclient.UnaryClientInterceptor(manager, false)),
//	)
func UnaryClientInterceptor(src AuthorizationSource, required bool) grpc.UnaryClientInterceptor {
	return unaryInterceptor(src, required, nil)
}

// StreamClientInterceptor is the streaming counterpart of UnaryClientInterceptor.
func StreamClientInterceptor(src AuthorizationSource, required bool) grpc.StreamClientInterceptor {
	return streamInterceptor(src, required, nil)
}

func unaryInterceptor(src AuthorizationSource, required bool, logger glog.Logger) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := authorize(ctx, src, required, logger, method)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func streamInterceptor(src AuthorizationSource, required bool, logger glog.Logger) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := authorize(ctx, src, required, logger, method)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// PerRPCCredentials adapts an AuthorizationSource to grpc's
// credentials.PerRPCCredentials, for use with grpc.WithPerRPCCredentials or
// grpc.PerRPCCredentials call options.
type PerRPCCredentials struct {
	Source AuthorizationSource

	// Required makes a missing credential fail the RPC.
	Required bool

	// AllowInsecure permits the credential on plaintext connections.
	AllowInsecure bool
}

var _ credentials.PerRPCCredentials = PerRPCCredentials{}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c PerRPCCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	if c.Source == nil {
		if c.Required {
			return nil, status.Error(codes.Unauthenticated, "grpcclient: no credential available")
		}
		return nil, nil
	}
	token, ok := c.Source.AuthorizationValue(ctx)
	if !ok {
		if c.Required {
			return nil, status.Error(codes.Unauthenticated, "grpcclient: no credential available")
		}
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c PerRPCCredentials) RequireTransportSecurity() bool {
	return !c.AllowInsecure
}
