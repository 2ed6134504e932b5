package custodian

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/glinharesb/keyless/internal/audit"
	"github.com/glinharesb/keyless/internal/crypto"
	"github.com/glinharesb/keyless/internal/hsm"
	"github.com/glinharesb/keyless/internal/keystore"
	"github.com/glinharesb/keyless/internal/metrics"
	"github.com/glinharesb/keyless/internal/sigalg"
)

// Server holds the private keys and answers Custodian calls.
type Server struct {
	UnimplementedCustodianServer
	store keystore.Store
	hsm   hsm.Provider
	audit *audit.Logger
	log   *slog.Logger
}

func NewServer(store keystore.Store, h hsm.Provider, a *audit.Logger, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store: store,
		hsm:   h,
		audit: a,
		log:   log,
	}
}

func (s *Server) Sign(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	start := time.Now()
	keyID, err := header(ctx, KeyIDHeader)
	if err != nil {
		return nil, err
	}
	alg, err := header(ctx, AlgorithmHeader)
	if err != nil {
		return nil, err
	}

	entry, err := s.activeKey(keyID)
	if err != nil {
		s.record(ctx, audit.OpSign, keyID, alg, err, start)
		return nil, err
	}

	sig, err := s.hsm.Sign(entry.PrivateKey, alg, req.GetValue())
	if err != nil {
		err = signError(err)
	} else if !s.hsm.Verify(entry.PrivateKey.Public(), alg, req.GetValue(), sig) {
		s.log.Error("signature failed verification", "key_id", keyID, "algorithm", alg)
		err = status.Error(codes.Internal, "signature failed verification")
	}
	s.record(ctx, audit.OpSign, keyID, alg, err, start)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(sig), nil
}

func (s *Server) Decrypt(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	start := time.Now()
	keyID, err := header(ctx, KeyIDHeader)
	if err != nil {
		return nil, err
	}

	entry, err := s.activeKey(keyID)
	if err == nil && !entry.Algorithm.IsRSA() {
		err = status.Errorf(codes.FailedPrecondition, "key %s (%v) cannot decrypt", keyID, entry.Algorithm)
	}
	if err != nil {
		s.record(ctx, audit.OpDecrypt, keyID, "", err, start)
		return nil, err
	}

	em, err := s.hsm.Decrypt(entry.PrivateKey, req.GetValue())
	if err != nil {
		if errors.Is(err, crypto.ErrCiphertextRange) {
			err = status.Error(codes.InvalidArgument, "ciphertext out of range")
		} else {
			err = status.Errorf(codes.Internal, "decrypt: %v", err)
		}
	}
	s.record(ctx, audit.OpDecrypt, keyID, "", err, start)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(em), nil
}

func (s *Server) PublicKey(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	start := time.Now()
	keyID, err := header(ctx, KeyIDHeader)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.Get(keyID)
	if err != nil {
		err = keyError(err)
		s.record(ctx, audit.OpPublicKey, keyID, "", err, start)
		return nil, err
	}
	der, err := crypto.MarshalPublicKey(entry.PrivateKey.Public())
	if err != nil {
		err = status.Errorf(codes.Internal, "marshal public key: %v", err)
	}
	s.record(ctx, audit.OpPublicKey, keyID, "", err, start)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(der), nil
}

// ReportKeys publishes the number of stored keys per status.
func (s *Server) ReportKeys() error {
	keys, err := s.store.List(0)
	if err != nil {
		return err
	}
	counts := map[keystore.KeyStatus]int{keystore.StatusActive: 0, keystore.StatusDeactivated: 0}
	for _, k := range keys {
		counts[k.Status]++
	}
	for st, n := range counts {
		metrics.KeysLoaded.WithLabelValues(st.String()).Set(float64(n))
	}
	return nil
}

func (s *Server) activeKey(id string) (*keystore.KeyEntry, error) {
	entry, err := s.store.Get(id)
	if err != nil {
		return nil, keyError(err)
	}
	if entry.Status != keystore.StatusActive {
		return nil, status.Error(codes.FailedPrecondition, "key is not active")
	}
	return entry, nil
}

// record writes the audit entry and metrics for one finished call.
func (s *Server) record(ctx context.Context, op audit.Operation, keyID, alg string, err error, start time.Time) {
	elapsed := time.Since(start)
	st := audit.StatusOK
	switch status.Code(err) {
	case codes.OK:
	case codes.NotFound, codes.FailedPrecondition, codes.InvalidArgument:
		st = audit.StatusDenied
	default:
		st = audit.StatusError
	}

	if s.audit != nil {
		s.audit.Log(audit.Entry{
			Operation:   op,
			KeyID:       keyID,
			Algorithm:   alg,
			Status:      st,
			PeerAddress: peerAddr(ctx),
			Duration:    elapsed,
		})
	}
	metrics.RecordOperation(string(op), alg, st, elapsed)
}

func header(ctx context.Context, name string) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(name); len(v) > 0 && v[0] != "" {
		return v[0], nil
	}
	return "", status.Errorf(codes.InvalidArgument, "missing %s header", name)
}

func keyError(err error) error {
	if errors.Is(err, keystore.ErrKeyNotFound) {
		return status.Error(codes.NotFound, "key not found")
	}
	return status.Errorf(codes.Internal, "%v", err)
}

func signError(err error) error {
	switch {
	case errors.Is(err, sigalg.ErrUnknownName),
		errors.Is(err, hsm.ErrKeyMismatch),
		errors.Is(err, hsm.ErrDigestLength):
		return status.Errorf(codes.InvalidArgument, "sign: %v", err)
	default:
		return status.Errorf(codes.Internal, "sign: %v", err)
	}
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
		return host
	}
	return p.Addr.String()
}
