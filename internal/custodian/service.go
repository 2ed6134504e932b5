package custodian

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Request metadata. Every call names its key; Sign also names the
// signature algorithm.
const (
	KeyIDHeader     = "x-keyless-key-id"
	AlgorithmHeader = "x-keyless-algorithm"
)

const (
	ServiceName = "keyless.v1.Custodian"

	SignFullMethodName      = "/keyless.v1.Custodian/Sign"
	DecryptFullMethodName   = "/keyless.v1.Custodian/Decrypt"
	PublicKeyFullMethodName = "/keyless.v1.Custodian/PublicKey"
)

// CustodianServer is the server API for the Custodian service.
//
// Sign takes a digest and returns the signature. Decrypt takes an RSA
// ciphertext and returns the raw encoded message. PublicKey returns the
// PKIX DER public key.
type CustodianServer interface {
	Sign(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Decrypt(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	PublicKey(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// UnimplementedCustodianServer can be embedded to have forward compatible implementations.
type UnimplementedCustodianServer struct{}

func (UnimplementedCustodianServer) Sign(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Sign not implemented")
}

func (UnimplementedCustodianServer) Decrypt(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Decrypt not implemented")
}

func (UnimplementedCustodianServer) PublicKey(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method PublicKey not implemented")
}

func RegisterCustodianServer(s grpc.ServiceRegistrar, srv CustodianServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func signHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustodianServer).Sign(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SignFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustodianServer).Sign(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func decryptHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustodianServer).Decrypt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DecryptFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustodianServer).Decrypt(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func publicKeyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustodianServer).PublicKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublicKeyFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustodianServer).PublicKey(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for the Custodian service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CustodianServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sign", Handler: signHandler},
		{MethodName: "Decrypt", Handler: decryptHandler},
		{MethodName: "PublicKey", Handler: publicKeyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keyless/v1/custodian.proto",
}

// CustodianClient is the client API for the Custodian service.
type CustodianClient interface {
	Sign(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Decrypt(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	PublicKey(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type custodianClient struct {
	cc grpc.ClientConnInterface
}

func NewCustodianClient(cc grpc.ClientConnInterface) CustodianClient {
	return &custodianClient{cc}
}

func (c *custodianClient) Sign(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, SignFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *custodianClient) Decrypt(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, DecryptFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *custodianClient) PublicKey(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, PublicKeyFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
