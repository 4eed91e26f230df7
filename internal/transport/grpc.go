package transport

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/credentials"

	"github.com/vyrodovalexey/eogate/internal/auth"
)

// PerRPCCredentials carries signer headers as gRPC request metadata.
type PerRPCCredentials struct {
	source     signerSource
	requireTLS bool
}

// NewPerRPCCredentials returns gRPC credentials sending the headers of a
// header-mode signer. Signers that rewrite the URL are rejected.
func NewPerRPCCredentials(signer auth.RequestSigner, requireTLS bool) (*PerRPCCredentials, error) {
	if _, err := headersOf(signer); err != nil {
		return nil, err
	}
	return &PerRPCCredentials{source: staticSource(signer), requireTLS: requireTLS}, nil
}

// NewProviderCredentials returns gRPC credentials that authenticate
// provider through a on every RPC.
func NewProviderCredentials(a Authenticator, provider string, requireTLS bool) *PerRPCCredentials {
	return &PerRPCCredentials{source: providerSource(a, provider), requireTLS: requireTLS}
}

// GetRequestMetadata returns the request metadata for gRPC.
func (c *PerRPCCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	signer, err := c.source(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := headersOf(signer)
	if err != nil {
		return nil, fmt.Errorf("grpc credentials: %w", err)
	}

	md := make(map[string]string, len(headers))
	for k, v := range headers {
		md[strings.ToLower(k)] = v
	}
	return md, nil
}

// RequireTransportSecurity indicates whether transport security is required.
func (c *PerRPCCredentials) RequireTransportSecurity() bool {
	return c.requireTLS
}

// Ensure PerRPCCredentials implements credentials.PerRPCCredentials.
var _ credentials.PerRPCCredentials = (*PerRPCCredentials)(nil)
