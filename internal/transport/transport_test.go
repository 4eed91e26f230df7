package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/eogate/internal/auth"
	"github.com/vyrodovalexey/eogate/internal/config"
)

// capture records the requests a test server receives.
type capture struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.requests = append(c.requests, r.Clone(context.Background()))
		c.mu.Unlock()
		_, _ = io.WriteString(w, "ok")
	})
}

func (c *capture) last() *http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

// fakeAuthenticator hands out a fixed signer or error and counts calls.
type fakeAuthenticator struct {
	signer auth.RequestSigner
	err    error

	mu        sync.Mutex
	providers []string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, provider string) (auth.RequestSigner, error) {
	f.mu.Lock()
	f.providers = append(f.providers, provider)
	f.mu.Unlock()
	return f.signer, f.err
}

func (f *fakeAuthenticator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.providers...)
}

func TestSigningTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		signer    auth.RequestSigner
		wantQuery string
		wantAuth  string
	}{
		{
			name:     "bearer",
			signer:   auth.NewBearerSigner("abc", map[string]string{"X-Api-Key": "k"}),
			wantAuth: "Bearer abc",
		},
		{
			name:      "query token",
			signer:    auth.NewQueryTokenSigner("abc", "access_token"),
			wantQuery: "page=1&access_token=abc",
		},
		{
			name:      "query string credentials",
			signer:    auth.NewQueryStringSigner(auth.Credentials{"user": "u", "pass": "p"}),
			wantQuery: "page=1&pass=p&user=u",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var c capture
			server := httptest.NewServer(c.handler())
			t.Cleanup(server.Close)

			client := &http.Client{Transport: NewSigningTransport(nil, tt.signer)}
			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/data?page=1", nil)
			require.NoError(t, err)

			resp, err := client.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			got := c.last()
			require.NotNil(t, got)
			assert.Equal(t, tt.wantAuth, got.Header.Get("Authorization"))
			if tt.wantQuery != "" {
				assert.Equal(t, tt.wantQuery, got.URL.RawQuery)
			}

			// The caller's request is untouched.
			assert.Empty(t, req.Header.Get("Authorization"))
			assert.Equal(t, "page=1", req.URL.RawQuery)
		})
	}
}

func TestSigningTransport_SignerError(t *testing.T) {
	t.Parallel()

	signErr := errors.New("sign failed")
	rt := NewSigningTransport(http.DefaultTransport, auth.SignerFunc(func(*http.Request) error {
		return signErr
	}))

	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:1/", strings.NewReader("body"))
	_, err := rt.RoundTrip(req)
	assert.ErrorIs(t, err, signErr)
}

func TestProviderTransport(t *testing.T) {
	t.Parallel()

	var c capture
	server := httptest.NewServer(c.handler())
	t.Cleanup(server.Close)

	fa := &fakeAuthenticator{signer: auth.NewBearerSigner("fresh", nil)}
	client := &http.Client{Transport: NewProviderTransport(nil, fa, "keycloak")}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, []string{"keycloak", "keycloak"}, fa.calls())
	assert.Equal(t, "Bearer fresh", c.last().Header.Get("Authorization"))

	failing := &http.Client{Transport: NewProviderTransport(nil, &fakeAuthenticator{err: auth.ErrCircuitOpen}, "keycloak")}
	_, err := failing.Get(server.URL)
	assert.ErrorIs(t, err, auth.ErrCircuitOpen)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	var c capture
	server := httptest.NewServer(c.handler())
	t.Cleanup(server.Close)

	base := server.Client()
	client := NewClient(base, auth.NewBearerSigner("abc", nil))
	assert.NotSame(t, base, client)
	assert.IsType(t, &SigningTransport{}, client.Transport)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "Bearer abc", c.last().Header.Get("Authorization"))
}

func TestHeadersOf(t *testing.T) {
	t.Parallel()

	headers, err := headersOf(auth.NewBearerSigner("abc", map[string]string{"X-Api-Key": "k"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "X-Api-Key": "k"}, headers)

	_, err = headersOf(auth.NewQueryTokenSigner("abc", "token"))
	assert.ErrorIs(t, err, ErrHeaderSignerRequired)

	_, err = headersOf(auth.NewQueryStringSigner(auth.Credentials{"a": "b"}))
	assert.ErrorIs(t, err, ErrHeaderSignerRequired)

	sas, err := auth.NewSASScheme("p", &config.AuthConfig{Type: config.SchemeSAS, AuthURI: "http://127.0.0.1:1/?href={url}"}, nil).
		Authenticate(context.Background())
	require.NoError(t, err)
	_, err = headersOf(sas)
	assert.ErrorIs(t, err, ErrHeaderSignerRequired)
}
