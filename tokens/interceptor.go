package tokens

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// adds the named slot's bearer token to outgoing request metadata.
//
// The token is added as "authorization: Bearer <token>". If no valid
// token can be served, the RPC is aborted with an error. The
// interceptor respects the RPC context's cancellation and deadline.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(manager.UnaryClientInterceptor("service")),
//	)
func (m *Manager) UnaryClientInterceptor(slotName string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		token, err := m.GetToken(ctx, slotName)
		if err != nil {
			return fmt.Errorf("tokens: failed to get token: %w", err)
		}

		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token.Value)

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// adds the named slot's bearer token to outgoing request metadata.
//
// The token is added as "authorization: Bearer <token>". If no valid
// token can be served, stream creation is aborted with an error.
func (m *Manager) StreamClientInterceptor(slotName string) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		token, err := m.GetToken(ctx, slotName)
		if err != nil {
			return nil, fmt.Errorf("tokens: failed to get token: %w", err)
		}

		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token.Value)

		return streamer(ctx, desc, cc, method, opts...)
	}
}
