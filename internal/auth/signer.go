package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/eogate/internal/config"
)

// RequestSigner attaches credentials to an outgoing request. Signers are
// immutable and safe for concurrent use; one signer may sign any number of
// requests.
type RequestSigner interface {
	Sign(req *http.Request) error
}

// SignerFunc adapts a function to the RequestSigner interface.
type SignerFunc func(req *http.Request) error

// Sign calls f(req).
func (f SignerFunc) Sign(req *http.Request) error {
	return f(req)
}

// TokenSigner carries a token either as a bearer Authorization header or as
// a query parameter.
type TokenSigner struct {
	token     string
	provision string
	qsKey     string
	headers   map[string]string
}

// NewBearerSigner returns a signer that sets Authorization: Bearer <token>
// and the given static headers.
func NewBearerSigner(token string, headers map[string]string) *TokenSigner {
	return &TokenSigner{
		token:     token,
		provision: config.TokenProvisionHeader,
		headers:   copyHeaders(headers),
	}
}

// NewQueryTokenSigner returns a signer that sets the query parameter key to
// token.
func NewQueryTokenSigner(token, key string) *TokenSigner {
	return &TokenSigner{
		token:     token,
		provision: config.TokenProvisionQuery,
		qsKey:     key,
	}
}

// Token returns the token carried by the signer.
func (s *TokenSigner) Token() string {
	return s.token
}

// Provision returns header or qs.
func (s *TokenSigner) Provision() string {
	return s.provision
}

// Key returns the query parameter name in qs mode.
func (s *TokenSigner) Key() string {
	return s.qsKey
}

// Headers returns the headers the signer sets in header mode.
func (s *TokenSigner) Headers() map[string]string {
	if s.provision != config.TokenProvisionHeader {
		return nil
	}
	out := copyHeaders(s.headers)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out["Authorization"] = "Bearer " + s.token
	return out
}

// Sign implements RequestSigner.
func (s *TokenSigner) Sign(req *http.Request) error {
	if s.provision == config.TokenProvisionQuery {
		mergeQuery(req.URL, []queryParam{{key: s.qsKey, value: s.token}})
		return nil
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	return nil
}

// QueryStringSigner adds every credential to the query string.
type QueryStringSigner struct {
	params []queryParam
}

// NewQueryStringSigner returns a signer for creds. Parameters are added in
// key order.
func NewQueryStringSigner(creds Credentials) *QueryStringSigner {
	params := make([]queryParam, 0, len(creds))
	for _, k := range creds.Keys() {
		params = append(params, queryParam{key: k, value: creds[k]})
	}
	return &QueryStringSigner{params: params}
}

// Sign implements RequestSigner.
func (s *QueryStringSigner) Sign(req *http.Request) error {
	mergeQuery(req.URL, s.params)
	return nil
}

type queryParam struct {
	key   string
	value string
}

// mergeQuery sets params on u without reordering or re-encoding the
// parameters already present. An existing parameter with an injected key
// keeps its position and takes the new value; later duplicates of that key
// are dropped. Keys not yet present are appended in order.
func mergeQuery(u *url.URL, params []queryParam) {
	if u == nil || len(params) == 0 {
		return
	}

	pending := make(map[string]string, len(params))
	for _, p := range params {
		pending[p.key] = p.value
	}
	placed := make(map[string]bool, len(params))

	var parts []string
	if u.RawQuery != "" {
		for _, seg := range strings.Split(u.RawQuery, "&") {
			if seg == "" {
				continue
			}
			rawKey, _, _ := strings.Cut(seg, "=")
			key, err := url.QueryUnescape(rawKey)
			if err != nil {
				key = rawKey
			}
			value, injected := pending[key]
			switch {
			case !injected:
				parts = append(parts, seg)
			case !placed[key]:
				parts = append(parts, encodeParam(key, value))
				placed[key] = true
			}
		}
	}

	for _, p := range params {
		if placed[p.key] {
			continue
		}
		parts = append(parts, encodeParam(p.key, p.value))
		placed[p.key] = true
	}

	u.RawQuery = strings.Join(parts, "&")
	u.ForceQuery = false
}

func encodeParam(key, value string) string {
	return url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

var (
	_ RequestSigner = (*TokenSigner)(nil)
	_ RequestSigner = (*QueryStringSigner)(nil)
	_ RequestSigner = SignerFunc(nil)
)
