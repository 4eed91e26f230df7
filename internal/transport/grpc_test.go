package transport

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vyrodovalexey/eogate/internal/auth"
)

const bufSize = 1024 * 1024

// healthServer is an in-memory gRPC health server recording the metadata
// of every call.
type healthServer struct {
	listener *bufconn.Listener
	server   *grpc.Server

	mu sync.Mutex
	md []metadata.MD
}

func newHealthServer(t *testing.T) *healthServer {
	t.Helper()

	hs := &healthServer{listener: bufconn.Listen(bufSize)}
	hs.server = grpc.NewServer(grpc.UnaryInterceptor(hs.intercept))
	healthpb.RegisterHealthServer(hs.server, health.NewServer())

	go func() { _ = hs.server.Serve(hs.listener) }()
	t.Cleanup(hs.server.Stop)
	return hs
}

func (hs *healthServer) intercept(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	hs.mu.Lock()
	hs.md = append(hs.md, md)
	hs.mu.Unlock()
	return handler(ctx, req)
}

func (hs *healthServer) lastMD() metadata.MD {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.md) == 0 {
		return nil
	}
	return hs.md[len(hs.md)-1]
}

func (hs *healthServer) check(t *testing.T, creds *PerRPCCredentials) error {
	t.Helper()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return hs.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(creds),
	)
	require.NoError(t, err)
	defer conn.Close()

	_, err = healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	return err
}

func TestNewPerRPCCredentials(t *testing.T) {
	t.Parallel()

	creds, err := NewPerRPCCredentials(auth.NewBearerSigner("abc", map[string]string{"X-Api-Key": "k"}), true)
	require.NoError(t, err)
	assert.True(t, creds.RequireTransportSecurity())

	md, err := creds.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"authorization": "Bearer abc", "x-api-key": "k"}, md)

	_, err = NewPerRPCCredentials(auth.NewQueryTokenSigner("abc", "token"), false)
	assert.ErrorIs(t, err, ErrHeaderSignerRequired)
}

func TestPerRPCCredentials_OverGRPC(t *testing.T) {
	t.Parallel()

	hs := newHealthServer(t)

	creds, err := NewPerRPCCredentials(auth.NewBearerSigner("abc", nil), false)
	require.NoError(t, err)
	require.NoError(t, hs.check(t, creds))

	md := hs.lastMD()
	assert.Equal(t, []string{"Bearer abc"}, md.Get("authorization"))
}

func TestProviderCredentials(t *testing.T) {
	t.Parallel()

	hs := newHealthServer(t)

	fa := &fakeAuthenticator{signer: auth.NewBearerSigner("fresh", nil)}
	creds := NewProviderCredentials(fa, "keycloak", false)
	assert.False(t, creds.RequireTransportSecurity())

	require.NoError(t, hs.check(t, creds))
	assert.Equal(t, []string{"Bearer fresh"}, hs.lastMD().Get("authorization"))
	assert.Equal(t, []string{"keycloak"}, fa.calls())

	qs := NewProviderCredentials(&fakeAuthenticator{signer: auth.NewQueryTokenSigner("t", "k")}, "p", false)
	_, err := qs.GetRequestMetadata(context.Background())
	assert.ErrorIs(t, err, ErrHeaderSignerRequired)

	down := NewProviderCredentials(&fakeAuthenticator{err: auth.ErrAuthPending}, "p", false)
	_, err = down.GetRequestMetadata(context.Background())
	assert.ErrorIs(t, err, auth.ErrAuthPending)
}
