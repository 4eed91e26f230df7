package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// maxResponseSize bounds the bodies read from authentication endpoints.
const maxResponseSize = 1 << 20

// TokenScheme exchanges credentials for a static token. Every Authenticate
// call obtains a new token; transport and HTTP failures are returned as
// they are, without falling back to an earlier token.
type TokenScheme struct {
	schemeBase
}

// NewTokenScheme creates a static token scheme.
func NewTokenScheme(name string, cfg *config.AuthConfig, creds Credentials, opts ...SchemeOption) *TokenScheme {
	return &TokenScheme{schemeBase: newSchemeBase(name, cfg, creds, opts)}
}

// Authenticate POSTs the credentials to auth_uri and returns a bearer signer.
func (s *TokenScheme) Authenticate(ctx context.Context) (RequestSigner, error) {
	authURI, err := ResolveTemplate(s.cfg.AuthURI, s.creds)
	if err != nil {
		return nil, err
	}
	headers, err := ResolveHeaders(s.cfg.Headers, s.creds)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	for k, v := range s.creds {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, s.authError("token", "failed to create token request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.authError("token", "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, s.authError("token", "failed to read token response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.httpStatusError("token", resp)
	}

	token, err := s.extractToken(body)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Debug("token obtained",
		observability.String("token_type", s.cfg.GetEffectiveTokenType()),
		observability.Duration("duration", time.Since(start)),
	)

	return NewBearerSigner(token, headers), nil
}

func (s *TokenScheme) extractToken(body []byte) (string, error) {
	if s.cfg.GetEffectiveTokenType() != config.TokenTypeJSON {
		token := strings.TrimSpace(string(body))
		if token == "" {
			return "", s.authError("token", "empty token response", ErrTokenMissing)
		}
		return token, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", s.authError("token", "failed to parse token response", err)
	}
	raw, ok := doc[s.cfg.TokenKey]
	if !ok {
		return "", s.authError("token", fmt.Sprintf("key %q not found in token response", s.cfg.TokenKey), ErrTokenMissing)
	}
	token, ok := raw.(string)
	if !ok || token == "" {
		return "", s.authError("token", fmt.Sprintf("key %q is not a non-empty string", s.cfg.TokenKey), ErrTokenMissing)
	}
	return token, nil
}

var _ Scheme = (*TokenScheme)(nil)
