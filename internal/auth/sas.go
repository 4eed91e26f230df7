package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// SASScheme signs each request by exchanging its URL for a signed URL.
// Authenticate performs no I/O; the exchange happens when a request is
// signed, because signed URLs are short-lived.
type SASScheme struct {
	schemeBase
}

// NewSASScheme creates a SAS signed-URL scheme.
func NewSASScheme(name string, cfg *config.AuthConfig, creds Credentials, opts ...SchemeOption) *SASScheme {
	return &SASScheme{schemeBase: newSchemeBase(name, cfg, creds, opts)}
}

// Authenticate returns a SASSigner. Headers are only resolved and sent
// when credentials are present.
func (s *SASScheme) Authenticate(_ context.Context) (RequestSigner, error) {
	var headers map[string]string
	if len(s.creds) > 0 {
		var err error
		headers, err = ResolveHeaders(s.cfg.Headers, s.creds)
		if err != nil {
			return nil, err
		}
	}

	return &SASSigner{
		provider:     s.name,
		client:       s.client,
		logger:       s.logger,
		authURI:      s.cfg.AuthURI,
		vars:         s.creds,
		signedURLKey: s.cfg.GetEffectiveSignedURLKey(),
		headers:      headers,
	}, nil
}

// SASSigner replaces the URL of each signed request with a signed URL
// fetched from the signing endpoint, and adds the subscription headers if
// any. Fetch failures surface from Sign as an AuthenticationError.
type SASSigner struct {
	provider     string
	client       *http.Client
	logger       observability.Logger
	authURI      string
	vars         Credentials
	signedURLKey string
	headers      map[string]string
}

// Headers returns the headers added to signed requests.
func (s *SASSigner) Headers() map[string]string {
	return copyHeaders(s.headers)
}

// Sign implements RequestSigner. The signing call uses the request's
// context.
func (s *SASSigner) Sign(req *http.Request) error {
	signed, err := s.fetchSignedURL(req.Context(), req.URL.String())
	if err != nil {
		return err
	}

	req.URL = signed
	req.Host = ""
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	return nil
}

// targetValue returns the value substituted for {url}: query-escaped when
// the placeholder sits in the query of auth_uri, raw otherwise.
func (s *SASSigner) targetValue(target string) string {
	q := strings.IndexByte(s.authURI, '?')
	if q >= 0 && strings.Contains(s.authURI[q:], "{"+urlPlaceholder+"}") {
		return url.QueryEscape(target)
	}
	return target
}

func (s *SASSigner) fetchSignedURL(ctx context.Context, target string) (*url.URL, error) {
	signURI, err := ResolveTemplate(s.authURI, s.vars.with(urlPlaceholder, s.targetValue(target)))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signURI, http.NoBody)
	if err != nil {
		return nil, s.authError("failed to create signing request", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.authError("signing request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, s.authError("failed to read signing response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		authErr := s.authError(fmt.Sprintf("unexpected response %s", resp.Status), nil)
		authErr.StatusCode = resp.StatusCode
		return nil, authErr
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, s.authError("failed to parse signing response", err)
	}
	raw, _ := doc[s.signedURLKey].(string)
	if raw == "" {
		return nil, s.authError(fmt.Sprintf("key %q not found in signing response", s.signedURLKey), ErrTokenMissing)
	}

	signed, err := url.Parse(raw)
	if err != nil {
		return nil, s.authError("invalid signed URL", err)
	}

	s.logger.WithContext(ctx).Debug("url signed", observability.String("host", signed.Host))
	return signed, nil
}

func (s *SASSigner) authError(message string, cause error) *AuthenticationError {
	return NewAuthenticationError(s.provider, "sign", message, cause)
}

var (
	_ Scheme        = (*SASScheme)(nil)
	_ RequestSigner = (*SASSigner)(nil)
)
