package interceptor

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// LoggingUnary logs unary RPC calls with method, duration and status code,
// plus the first value of each named metadata header that is present.
func LoggingUnary(log *slog.Logger, headers ...string) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		attrs := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"duration", time.Since(start),
			"peer", peerHost(ctx),
		}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			for _, h := range headers {
				if v := md.Get(h); len(v) > 0 {
					attrs = append(attrs, h, v[0])
				}
			}
		}
		log.Info("unary", attrs...)
		return resp, err
	}
}
