package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/glinharesb/keyless/internal/audit"
	"github.com/glinharesb/keyless/internal/config"
	"github.com/glinharesb/keyless/internal/custodian"
	"github.com/glinharesb/keyless/internal/hsm"
	"github.com/glinharesb/keyless/internal/interceptor"
	"github.com/glinharesb/keyless/internal/keystore"
	"github.com/glinharesb/keyless/internal/metrics"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	auditLogger := audit.NewLogger(cfg.AuditBuffer, os.Stdout)
	defer auditLogger.Close()
	go mirrorFailures(auditLogger.Subscribe())

	var store keystore.Store
	if cfg.DataDir != "" {
		var opts []keystore.Option
		if cfg.SealKey != "" {
			opts = append(opts, keystore.WithSealKey([]byte(cfg.SealKey)))
		}
		ps, err := keystore.OpenDir(cfg.DataDir, opts...)
		if err != nil {
			slog.Error("persistent store", "error", err)
			os.Exit(1)
		}
		store = ps
		slog.Info("using persistent store", "path", cfg.DataDir, "sealed", cfg.SealKey != "")
	} else {
		store = keystore.NewMemoryStore()
		slog.Warn("using in-memory store; no keys are available until imported")
	}

	cs := custodian.NewServer(store, hsm.NewSoftwareHSM(), auditLogger, slog.Default())
	if err := cs.ReportKeys(); err != nil {
		slog.Warn("report keys", "error", err)
	}

	limiter := interceptor.NewPeerLimiter(cfg.RateLimitRPS, 0)
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			interceptor.RecoveryUnary(slog.Default()),
			metrics.UnaryInterceptor(),
			interceptor.LoggingUnary(slog.Default(), custodian.KeyIDHeader, custodian.AlgorithmHeader),
			interceptor.RateLimitUnary(limiter),
			interceptor.AuthUnary(cfg.AuthToken),
		),
	}
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			slog.Error("load tls credentials", "error", err)
			os.Exit(1)
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		slog.Warn("serving without TLS")
	}

	srv := grpc.NewServer(opts...)
	custodian.RegisterCustodianServer(srv, cs)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		slog.Error("listen", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go limiter.Run(ctx, time.Minute, 10*time.Minute)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr)
		go func() {
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics serve", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("custodian starting", "addr", cfg.GRPCAddr)
		if err := srv.Serve(lis); err != nil {
			slog.Error("serve", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	// Graceful shutdown with 10s timeout
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		slog.Warn("graceful shutdown timed out, forcing stop")
		srv.Stop()
	}
}

// mirrorFailures copies denied and failed operations to the process log.
func mirrorFailures(sub *audit.Subscriber) {
	for e := range sub.C {
		if e.Status == audit.StatusOK {
			continue
		}
		slog.Warn("custodian operation refused",
			"operation", e.Operation,
			"key_id", e.KeyID,
			"status", e.Status,
			"peer", e.PeerAddress,
		)
	}
}
