package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// Grant types recorded in metrics.
const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

// OIDCPasswordScheme obtains tokens with the OAuth2 password grant and
// renews them with the refresh grant while a refresh token is available.
// When both grants fail and a token was obtained before, that token is
// handed out again.
type OIDCPasswordScheme struct {
	schemeBase
	cache *TokenCache

	endpointMu sync.Mutex
	endpoint   *oauth2.Endpoint
}

// NewOIDCPasswordScheme creates an OIDC password-grant scheme.
func NewOIDCPasswordScheme(name string, cfg *config.AuthConfig, creds Credentials, opts ...SchemeOption) *OIDCPasswordScheme {
	s := &OIDCPasswordScheme{schemeBase: newSchemeBase(name, cfg, creds, opts)}
	s.cache = NewTokenCache(WithCacheClock(s.clock))
	return s
}

// Cache returns the scheme's token cache.
func (s *OIDCPasswordScheme) Cache() *TokenCache {
	return s.cache
}

// Authenticate returns a signer for an unexpired token, obtaining one if
// needed.
func (s *OIDCPasswordScheme) Authenticate(ctx context.Context) (RequestSigner, error) {
	state, err := s.cache.GetOrRefresh(ctx, s.obtain)
	if err == nil {
		s.metrics.SetTokenAge(s.name, s.schemeType, state.Age(s.clock()))
		return s.signer(state.AccessToken), nil
	}
	if errors.Is(err, ErrAuthPending) {
		return nil, err
	}

	stored, ok := s.cache.Current()
	if !ok || stored.AccessToken == "" {
		return nil, err
	}

	age := stored.Age(s.clock())
	s.logger.WithContext(ctx).Warn("token request failed, using previously obtained token",
		observability.Error(err),
		observability.Duration("token_age", age),
	)
	s.metrics.RecordFallback(s.name, s.schemeType)
	s.metrics.SetTokenAge(s.name, s.schemeType, age)

	return s.signer(stored.AccessToken), nil
}

func (s *OIDCPasswordScheme) signer(token string) RequestSigner {
	if s.cfg.TokenProvision == config.TokenProvisionQuery {
		return NewQueryTokenSigner(token, s.cfg.TokenQSKey)
	}
	return NewBearerSigner(token, nil)
}

// obtain runs the refresh grant when the stored state allows it, and the
// password grant otherwise or when the refresh grant fails.
func (s *OIDCPasswordScheme) obtain(ctx context.Context, current TokenState, ok bool) (TokenState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetEffectiveTimeout())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)

	conf, err := s.oauthConfig(ctx)
	if err != nil {
		return TokenState{}, err
	}

	if ok && current.CanRefresh(s.clock()) {
		tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
		if err == nil {
			s.metrics.RecordRefresh(s.name, s.schemeType, GrantRefreshToken, "success")
			return s.stateFrom(tok), nil
		}
		s.metrics.RecordRefresh(s.name, s.schemeType, GrantRefreshToken, "error")
		s.logger.WithContext(ctx).Warn("refresh grant failed, retrying with password grant",
			observability.Error(err),
		)
	}

	tok, err := s.passwordGrant(ctx, conf)
	if err != nil {
		s.metrics.RecordRefresh(s.name, s.schemeType, GrantPassword, "error")
		return TokenState{}, s.grantError(err)
	}
	s.metrics.RecordRefresh(s.name, s.schemeType, GrantPassword, "success")
	return s.stateFrom(tok), nil
}

// passwordGrant posts every credential field together with the client
// identity; fields absent from the credentials are not sent.
func (s *OIDCPasswordScheme) passwordGrant(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	form := url.Values{}
	for _, k := range s.creds.Keys() {
		form.Set(k, s.creds[k])
	}
	form.Set("client_id", conf.ClientID)
	form.Set("client_secret", conf.ClientSecret)
	form.Set("grant_type", GrantPassword)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, s.authError("password_grant", "failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rErr := &oauth2.RetrieveError{Response: resp, Body: body}
		var doc struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &doc) == nil {
			rErr.ErrorCode = doc.Error
			rErr.ErrorDescription = doc.ErrorDescription
		}
		return nil, rErr
	}

	return parseTokenResponse(body)
}

// parseTokenResponse decodes a JSON token response. Every field is kept as
// an extra so expires_in and refresh_expires_in stay available.
func parseTokenResponse(body []byte) (*oauth2.Token, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}

	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}
	tok := &oauth2.Token{
		AccessToken:  str("access_token"),
		TokenType:    str("token_type"),
		RefreshToken: str("refresh_token"),
	}
	if tok.AccessToken == "" {
		return nil, ErrTokenMissing
	}
	return tok.WithExtra(raw), nil
}

func (s *OIDCPasswordScheme) oauthConfig(ctx context.Context) (*oauth2.Config, error) {
	endpoint, err := s.tokenEndpoint(ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint:     endpoint,
	}, nil
}

// issuer returns {auth_base_uri}/realms/{realm}.
func (s *OIDCPasswordScheme) issuer() string {
	return strings.TrimSuffix(s.cfg.AuthBaseURI, "/") + "/realms/" + s.cfg.Realm
}

// tokenEndpoint returns the Keycloak token endpoint of the realm, or the
// one advertised by the issuer's discovery document when discovery is
// enabled. A discovered endpoint is kept for the scheme's lifetime.
func (s *OIDCPasswordScheme) tokenEndpoint(ctx context.Context) (oauth2.Endpoint, error) {
	if !s.cfg.Discovery {
		return oauth2.Endpoint{
			TokenURL:  s.issuer() + "/protocol/openid-connect/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}, nil
	}

	s.endpointMu.Lock()
	defer s.endpointMu.Unlock()

	if s.endpoint != nil {
		return *s.endpoint, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, s.client), s.issuer())
	if err != nil {
		return oauth2.Endpoint{}, s.authError("discovery", "failed to discover token endpoint", err)
	}
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	s.endpoint = &endpoint

	s.logger.Debug("token endpoint discovered", observability.String("token_url", endpoint.TokenURL))
	return endpoint, nil
}

// stateFrom builds the token state from a grant response.
func (s *OIDCPasswordScheme) stateFrom(tok *oauth2.Token) TokenState {
	now := s.clock()
	state := TokenState{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ObtainedAt:   now,
		ExpiresAt:    now,
	}

	if secs, ok := numericExtra(tok.Extra("expires_in")); ok {
		state.ExpiresAt = now.Add(time.Duration(secs * float64(time.Second)))
	} else if exp, ok := jwtExpiry(tok.AccessToken); ok {
		state.ExpiresAt = exp
	}

	if secs, ok := numericExtra(tok.Extra("refresh_expires_in")); ok && secs > 0 {
		state.RefreshExpiresAt = now.Add(time.Duration(secs * float64(time.Second)))
	}

	s.metrics.SetTokenExpiry(s.name, s.schemeType, state.ExpiresAt)
	return state
}

func (s *OIDCPasswordScheme) grantError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		authErr := s.authError("password_grant", "token request rejected", err)
		if rErr.Response != nil {
			authErr.StatusCode = rErr.Response.StatusCode
		}
		return authErr
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}
	return s.authError("password_grant", "token request failed", err)
}

// numericExtra converts a token response field to seconds.
func numericExtra(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// jwtExpiry returns the exp claim of an access token that is a JWT. The
// signature is not checked; the value only schedules the next refresh.
func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return time.Time{}, false
	}
	exp := parsed.Expiration()
	return exp, !exp.IsZero()
}

var _ Scheme = (*OIDCPasswordScheme)(nil)
