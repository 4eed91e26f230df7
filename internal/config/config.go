package config

import "time"

// Gateway-wide defaults.
const (
	DefaultUserAgent          = "eogate/dev"
	DefaultBreakerMaxFailures = 5
	DefaultBreakerOpenTimeout = 30 * time.Second
	DefaultVaultMount         = "secret"
)

// GatewayConfig is the root of the authentication configuration file.
type GatewayConfig struct {
	// UserAgent is sent on every outbound authentication request.
	UserAgent string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`

	// Breaker configures the per-provider circuit breaker.
	Breaker *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`

	// Vault configures the Vault credential source.
	Vault *VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`

	// Tracing configures OpenTelemetry export.
	Tracing *TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`

	// Providers lists one authentication identity per provider.
	Providers []ProviderConfig `yaml:"providers" json:"providers"`
}

// ProviderConfig binds a provider name to its authentication descriptor and
// the credentials used with it.
type ProviderConfig struct {
	Name string     `yaml:"name" json:"name"`
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Credentials are inline credentials (usually ${ENV} substituted).
	Credentials map[string]string `yaml:"credentials,omitempty" json:"credentials,omitempty"`

	// CredentialsFrom reads credentials from Vault; entries found there
	// override inline credentials with the same name.
	CredentialsFrom *VaultSecretRef `yaml:"credentials_from,omitempty" json:"credentials_from,omitempty"`
}

// VaultSecretRef points at a KV v2 secret.
type VaultSecretRef struct {
	Mount string `yaml:"mount,omitempty" json:"mount,omitempty"`
	Path  string `yaml:"path" json:"path"`
}

// GetEffectiveMount returns the KV mount, defaulting to secret.
func (r *VaultSecretRef) GetEffectiveMount() string {
	if r == nil || r.Mount == "" {
		return DefaultVaultMount
	}
	return r.Mount
}

// VaultConfig configures the Vault client.
type VaultConfig struct {
	Address   string   `yaml:"address" json:"address"`
	Token     string   `yaml:"token,omitempty" json:"token,omitempty"`
	Namespace string   `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries bounds retries of transient read failures; 0 disables them.
	MaxRetries   int      `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryBackoff Duration `yaml:"retry_backoff,omitempty" json:"retry_backoff,omitempty"`
}

// BreakerConfig configures the circuit breaker guarding each provider's
// authentication endpoint.
type BreakerConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	MaxFailures int      `yaml:"max_failures,omitempty" json:"max_failures,omitempty"`
	OpenTimeout Duration `yaml:"open_timeout,omitempty" json:"open_timeout,omitempty"`
}

// GetEffectiveMaxFailures returns the consecutive failures that open the breaker.
func (c *BreakerConfig) GetEffectiveMaxFailures() int {
	if c == nil || c.MaxFailures <= 0 {
		return DefaultBreakerMaxFailures
	}
	return c.MaxFailures
}

// GetEffectiveOpenTimeout returns how long the breaker stays open.
func (c *BreakerConfig) GetEffectiveOpenTimeout() time.Duration {
	if c == nil || c.OpenTimeout.Duration() <= 0 {
		return DefaultBreakerOpenTimeout
	}
	return c.OpenTimeout.Duration()
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
}

// GetEffectiveUserAgent returns the identifying User-Agent.
func (c *GatewayConfig) GetEffectiveUserAgent() string {
	if c == nil || c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

// Provider returns the provider configuration with the given name.
func (c *GatewayConfig) Provider(name string) (*ProviderConfig, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], true
		}
	}
	return nil, false
}
