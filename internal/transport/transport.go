// Package transport plugs authentication signers into outbound clients:
// net/http round trippers, gRPC per-RPC credentials and Azure SDK pipelines.
package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/eogate/internal/auth"
)

// ErrHeaderSignerRequired is returned when a signer that rewrites the URL is
// used where only headers can be carried.
var ErrHeaderSignerRequired = errors.New("signer does not produce headers only")

// Authenticator returns a signer for a provider. *auth.Coordinator
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, provider string) (auth.RequestSigner, error)
}

// signerSource yields the signer for one outbound call.
type signerSource func(ctx context.Context) (auth.RequestSigner, error)

func staticSource(signer auth.RequestSigner) signerSource {
	return func(context.Context) (auth.RequestSigner, error) {
		return signer, nil
	}
}

func providerSource(a Authenticator, provider string) signerSource {
	return func(ctx context.Context) (auth.RequestSigner, error) {
		return a.Authenticate(ctx, provider)
	}
}

// SigningTransport is an http.RoundTripper that signs every request before
// passing it to the base transport.
type SigningTransport struct {
	base   http.RoundTripper
	source signerSource
}

// NewSigningTransport returns a transport that applies signer to every request.
func NewSigningTransport(base http.RoundTripper, signer auth.RequestSigner) *SigningTransport {
	return newSigningTransport(base, staticSource(signer))
}

// NewProviderTransport returns a transport that authenticates provider
// through a before every request, so cached tokens are reused and expired
// ones renewed.
func NewProviderTransport(base http.RoundTripper, a Authenticator, provider string) *SigningTransport {
	return newSigningTransport(base, providerSource(a, provider))
}

func newSigningTransport(base http.RoundTripper, source signerSource) *SigningTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &SigningTransport{base: base, source: source}
}

// RoundTrip implements http.RoundTripper. The caller's request is never
// modified.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	signer, err := t.source(req.Context())
	if err != nil {
		closeBody(req)
		return nil, err
	}

	out := req.Clone(req.Context())
	if err := signer.Sign(out); err != nil {
		closeBody(req)
		return nil, err
	}
	return t.base.RoundTrip(out)
}

// NewClient returns a copy of base whose transport signs every request.
func NewClient(base *http.Client, signer auth.RequestSigner) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	client.Transport = NewSigningTransport(client.Transport, signer)
	return client
}

// headersOf returns the headers a header-only signer sets.
func headersOf(signer auth.RequestSigner) (map[string]string, error) {
	ts, ok := signer.(*auth.TokenSigner)
	if !ok {
		return nil, ErrHeaderSignerRequired
	}
	headers := ts.Headers()
	if headers == nil {
		return nil, ErrHeaderSignerRequired
	}
	return headers, nil
}

// closeBody honours the RoundTripper contract of closing the body on error.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
