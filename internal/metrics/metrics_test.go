package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRecordOperation(t *testing.T) {
	c := OperationsTotal.WithLabelValues("Sign", "ecdsa-secp256r1-sha256", "OK")
	before := testutil.ToFloat64(c)

	RecordOperation("Sign", "ecdsa-secp256r1-sha256", "OK", 3*time.Millisecond)

	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestUnaryInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/keyless.v1.Custodian/Decrypt"}
	c := GRPCRequestsTotal.WithLabelValues(info.FullMethod, codes.NotFound.String())
	before := testutil.ToFloat64(c)

	handler := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "no key")
	}
	if _, err := UnaryInterceptor()(context.Background(), nil, info, handler); status.Code(err) != codes.NotFound {
		t.Fatalf("error not passed through: %v", err)
	}
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestServerExposesMetrics(t *testing.T) {
	KeysLoaded.WithLabelValues("ACTIVE").Set(3)

	srv := NewServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `keyless_keys{status="ACTIVE"} 3`) {
		t.Fatalf("metrics output missing gauge:\n%s", body)
	}
}
