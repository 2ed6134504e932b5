package interceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type peerEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PeerLimiter keeps one token bucket per client host.
type PeerLimiter struct {
	mu    sync.Mutex
	peers map[string]*peerEntry
	rate  rate.Limit
	burst int
}

// NewPeerLimiter allows rps requests per second per peer with bursts of
// up to burst. A burst below 1 defaults to rps.
func NewPeerLimiter(rps, burst int) *PeerLimiter {
	if burst < 1 {
		burst = rps
	}
	return &PeerLimiter{
		peers: make(map[string]*peerEntry),
		rate:  rate.Limit(rps),
		burst: burst,
	}
}

// Allow reports whether a request from host may proceed now.
func (l *PeerLimiter) Allow(host string) bool {
	l.mu.Lock()
	e, ok := l.peers[host]
	if !ok {
		e = &peerEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.peers[host] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// Sweep forgets peers idle for longer than maxIdle and returns how many
// remain.
func (l *PeerLimiter) Sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for host, e := range l.peers {
		if e.lastSeen.Before(cutoff) {
			delete(l.peers, host)
		}
	}
	return len(l.peers)
}

// Run sweeps every interval until ctx is done.
func (l *PeerLimiter) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep(maxIdle)
		case <-ctx.Done():
			return
		}
	}
}

// RateLimitUnary returns a unary interceptor that enforces l per peer host.
func RateLimitUnary(l *PeerLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !l.Allow(peerHost(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
