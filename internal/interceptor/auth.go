package interceptor

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthorizationHeader carries the custodian credential as
// "Bearer <token>".
const AuthorizationHeader = "authorization"

var errUnauthenticated = status.Error(codes.Unauthenticated, "custodian: missing or invalid bearer token")

// AuthUnary admits a call only when it carries exactly one bearer token
// equal to token. All TLS front ends of a custodian share that token. An
// empty token admits nothing. Every rejection carries the same status so
// the caller cannot tell which check failed.
func AuthUnary(token string) grpc.UnaryServerInterceptor {
	want := []byte(token)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !authorized(ctx, want) {
			return nil, errUnauthenticated
		}
		return handler(ctx, req)
	}
}

func authorized(ctx context.Context, want []byte) bool {
	if len(want) == 0 {
		return false
	}
	values := metadata.ValueFromIncomingContext(ctx, AuthorizationHeader)
	if len(values) != 1 {
		return false
	}
	got, ok := strings.CutPrefix(values[0], "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), want) == 1
}
