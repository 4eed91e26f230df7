package auth

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// QueryStringScheme sends the credentials in the query string of every
// request. Authenticate only checks that auth_uri accepts them.
type QueryStringScheme struct {
	schemeBase
}

// NewQueryStringScheme creates a query-string scheme.
func NewQueryStringScheme(name string, cfg *config.AuthConfig, creds Credentials, opts ...SchemeOption) *QueryStringScheme {
	return &QueryStringScheme{schemeBase: newSchemeBase(name, cfg, creds, opts)}
}

// Authenticate GETs auth_uri signed with the credentials and returns the
// signer on a 2xx response.
func (s *QueryStringScheme) Authenticate(ctx context.Context) (RequestSigner, error) {
	authURI, err := ResolveTemplate(s.cfg.AuthURI, s.creds)
	if err != nil {
		return nil, err
	}
	headers, err := ResolveHeaders(s.cfg.Headers, s.creds)
	if err != nil {
		return nil, err
	}

	signer := NewQueryStringSigner(s.creds)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURI, http.NoBody)
	if err != nil {
		return nil, s.authError("check", "failed to create request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if err := signer.Sign(req); err != nil {
		return nil, s.authError("check", "failed to sign request", err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.authError("check", "auth_uri unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.httpStatusError("check", resp)
	}

	s.logger.WithContext(ctx).Debug("query string credentials accepted",
		observability.Int("params", len(s.creds)),
		observability.Duration("duration", time.Since(start)),
	)

	return signer, nil
}

var _ Scheme = (*QueryStringScheme)(nil)
