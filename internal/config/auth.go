package config

import "time"

// Authentication scheme identifiers.
const (
	SchemeToken        = "token"
	SchemeQueryString  = "qsauth"
	SchemeSAS          = "sas"
	SchemeOIDCPassword = "oidc_password"
)

// Token types for the static token scheme.
const (
	TokenTypeText = "text"
	TokenTypeJSON = "json"
)

// Token provision modes for the OIDC scheme.
const (
	TokenProvisionHeader = "header"
	TokenProvisionQuery  = "qs"
)

// Defaults applied through the GetEffective* helpers.
const (
	DefaultSignedURLKey = "href"
	DefaultAuthTimeout  = 5 * time.Second
)

// AuthConfig describes how one provider authenticates. It is built once at
// provider setup and treated as read-only afterwards; reconfiguring a
// provider means building a new AuthConfig and a new scheme.
type AuthConfig struct {
	// Type is the scheme identifier (token, qsauth, sas, oidc_password).
	Type string `yaml:"type" json:"type"`

	// AuthURI is the token, validation or signing endpoint. It may contain
	// {name} placeholders resolved from the credentials; the SAS scheme
	// reserves {url} for the resource being signed.
	AuthURI string `yaml:"auth_uri,omitempty" json:"auth_uri,omitempty"`

	// Headers are static headers whose values may contain credential
	// placeholders, e.g. {"Ocp-Apim-Subscription-Key": "{apikey}"}.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// TokenType is text or json (static token scheme, default text).
	TokenType string `yaml:"token_type,omitempty" json:"token_type,omitempty"`

	// TokenKey is the JSON key holding the token when TokenType is json.
	TokenKey string `yaml:"token_key,omitempty" json:"token_key,omitempty"`

	// TokenProvision is header or qs (OIDC scheme).
	TokenProvision string `yaml:"token_provision,omitempty" json:"token_provision,omitempty"`

	// TokenQSKey is the query parameter carrying the token when TokenProvision is qs.
	TokenQSKey string `yaml:"token_qs_key,omitempty" json:"token_qs_key,omitempty"`

	// SignedURLKey is the JSON key holding the signed URL (SAS scheme, default href).
	SignedURLKey string `yaml:"signed_url_key,omitempty" json:"signed_url_key,omitempty"`

	// AuthBaseURI is the OIDC server base, e.g. https://keycloak.example.com/auth.
	AuthBaseURI string `yaml:"auth_base_uri,omitempty" json:"auth_base_uri,omitempty"`

	// Realm is the OIDC realm.
	Realm string `yaml:"realm,omitempty" json:"realm,omitempty"`

	// ClientID is the OIDC client ID.
	ClientID string `yaml:"client_id,omitempty" json:"client_id,omitempty"`

	// ClientSecret is the OIDC client secret.
	ClientSecret string `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`

	// Discovery resolves the token endpoint from the realm's discovery
	// document instead of the Keycloak path convention.
	Discovery bool `yaml:"discovery,omitempty" json:"discovery,omitempty"`

	// Timeout bounds every outbound authentication request.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// GetEffectiveTokenType returns the token type, defaulting to text.
func (c *AuthConfig) GetEffectiveTokenType() string {
	if c == nil || c.TokenType == "" {
		return TokenTypeText
	}
	return c.TokenType
}

// GetEffectiveSignedURLKey returns the signed URL key, defaulting to href.
func (c *AuthConfig) GetEffectiveSignedURLKey() string {
	if c == nil || c.SignedURLKey == "" {
		return DefaultSignedURLKey
	}
	return c.SignedURLKey
}

// GetEffectiveTimeout returns the outbound request timeout.
func (c *AuthConfig) GetEffectiveTimeout() time.Duration {
	if c == nil || c.Timeout.Duration() <= 0 {
		return DefaultAuthTimeout
	}
	return c.Timeout.Duration()
}

// Clone returns a deep copy so callers can derive a modified descriptor
// without touching one that is already in use.
func (c *AuthConfig) Clone() *AuthConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return &out
}
