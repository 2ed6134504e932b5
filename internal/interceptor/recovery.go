package interceptor

import (
	"context"
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RecoveryUnary turns a panicking handler into an Internal error. The
// panic value and stack go to log only; the caller sees a fixed message.
func RecoveryUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.ErrorContext(ctx, "handler panic",
				"method", info.FullMethod,
				"peer", peerHost(ctx),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp, err = nil, status.Error(codes.Internal, "custodian internal error")
		}()
		return handler(ctx, req)
	}
}
