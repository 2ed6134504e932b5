package custodian

import (
	"context"
	gocrypto "crypto"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/glinharesb/keyless"
	"github.com/glinharesb/keyless/internal/crypto"
	"github.com/glinharesb/keyless/internal/interceptor"
)

// Client calls a Custodian and adapts it to keyless callbacks.
type Client struct {
	conn    *grpc.ClientConn
	rpc     CustodianClient
	token   string
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	token    string
	timeout  time.Duration
	dialOpts []grpc.DialOption
}

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) ClientOption {
	return func(o *clientOptions) { o.token = token }
}

// WithTimeout bounds each call made through the keyless callbacks.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithDialOptions adds gRPC dial options. Without transport credentials
// among them, Dial uses an insecure connection.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(o *clientOptions) { o.dialOpts = append(o.dialOpts, opts...) }
}

func buildOptions(opts []ClientOption) clientOptions {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dial creates a Client for the custodian at target.
func Dial(target string, opts ...ClientOption) (*Client, error) {
	o := buildOptions(opts)
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, o.dialOpts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial custodian: %w", err)
	}
	c := newClient(NewCustodianClient(conn), o)
	c.conn = conn
	return c, nil
}

// NewClient wraps an existing connection. Close does not close cc.
func NewClient(cc grpc.ClientConnInterface, opts ...ClientOption) *Client {
	return newClient(NewCustodianClient(cc), buildOptions(opts))
}

func newClient(rpc CustodianClient, o clientOptions) *Client {
	return &Client{rpc: rpc, token: o.token, timeout: o.timeout}
}

func (c *Client) outgoing(ctx context.Context, kv ...string) context.Context {
	if c.token != "" {
		kv = append(kv, interceptor.AuthorizationHeader, "Bearer "+c.token)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

// Sign asks the custodian to sign digest with keyID.
func (c *Client) Sign(ctx context.Context, keyID, algorithm string, digest []byte) ([]byte, error) {
	ctx = c.outgoing(ctx, KeyIDHeader, keyID, AlgorithmHeader, algorithm)
	resp, err := c.rpc.Sign(ctx, wrapperspb.Bytes(digest))
	if err != nil {
		return nil, err
	}
	return resp.GetValue(), nil
}

// Decrypt asks the custodian for the raw RSA decryption of ciphertext.
func (c *Client) Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	ctx = c.outgoing(ctx, KeyIDHeader, keyID)
	resp, err := c.rpc.Decrypt(ctx, wrapperspb.Bytes(ciphertext))
	if err != nil {
		return nil, err
	}
	return resp.GetValue(), nil
}

// PublicKey fetches the public half of keyID.
func (c *Client) PublicKey(ctx context.Context, keyID string) (gocrypto.PublicKey, error) {
	ctx = c.outgoing(ctx, KeyIDHeader, keyID)
	resp, err := c.rpc.PublicKey(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	return crypto.ParsePublicKey(resp.GetValue())
}

func (c *Client) callContext() (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(context.Background(), c.timeout)
	}
	return context.WithCancel(context.Background())
}

// SignFunc returns a keyless sign callback backed by c.
func (c *Client) SignFunc() keyless.SignFunc {
	return func(keyID, algorithm string, digest []byte) ([]byte, error) {
		ctx, cancel := c.callContext()
		defer cancel()
		return c.Sign(ctx, keyID, algorithm, digest)
	}
}

// DecryptFunc returns a keyless decrypt callback backed by c.
func (c *Client) DecryptFunc() keyless.DecryptFunc {
	return func(keyID string, ciphertext []byte) ([]byte, error) {
		ctx, cancel := c.callContext()
		defer cancel()
		return c.Decrypt(ctx, keyID, ciphertext)
	}
}

// Bind registers c's sign and decrypt callbacks with p for each key id.
func (c *Client) Bind(p *keyless.Provider, keyIDs ...string) error {
	var errs []error
	for _, id := range keyIDs {
		if err := p.RegisterKeylessSignCallback(id, c.SignFunc()); err != nil {
			errs = append(errs, fmt.Errorf("bind sign %s: %w", id, err))
			continue
		}
		if err := p.RegisterKeylessDecryptCallback(id, c.DecryptFunc()); err != nil {
			errs = append(errs, fmt.Errorf("bind decrypt %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Key fetches the public key of keyID and returns the matching keyless
// key. The callbacks for keyID must be bound separately.
func (c *Client) Key(ctx context.Context, p *keyless.Provider, keyID string) (*keyless.Key, error) {
	pub, err := c.PublicKey(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("fetch public key %s: %w", keyID, err)
	}
	return p.NewKey(pub, keyID)
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
