package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
	"github.com/vyrodovalexey/eogate/internal/retry"
)

// DefaultTimeout bounds every Vault request.
const DefaultTimeout = 10 * time.Second

// CredentialReader reads a credential mapping from a secret store.
type CredentialReader interface {
	ReadCredentials(ctx context.Context, mount, path string) (map[string]string, error)
}

// Client reads credentials from Vault.
type Client struct {
	api    *vaultapi.Client
	logger observability.Logger
	retry  *retry.Config
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger observability.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetry retries transient read failures. Missing or malformed secrets
// and client errors such as permission denied are never retried.
func WithRetry(cfg *retry.Config) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New creates a new Vault client.
func New(cfg *config.VaultConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, NewVaultError("init", "", fmt.Errorf("%w: address is required", ErrInvalidConfig))
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	apiConfig.MaxRetries = 0
	apiConfig.Timeout = DefaultTimeout
	if cfg.Timeout.Duration() > 0 {
		apiConfig.Timeout = cfg.Timeout.Duration()
	}

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, NewVaultError("init", "", err)
	}
	if cfg.Token != "" {
		api.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	c := &Client{
		api:    api,
		logger: observability.NopLogger(),
	}
	if cfg.MaxRetries > 0 {
		c.retry = &retry.Config{MaxRetries: cfg.MaxRetries, InitialBackoff: cfg.RetryBackoff.Duration()}
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(observability.String("component", "vault"))

	return c, nil
}

// ReadCredentials reads a KV v2 secret and returns its string values.
func (c *Client) ReadCredentials(ctx context.Context, mount, path string) (map[string]string, error) {
	if path == "" {
		return nil, NewVaultError("kv_read", path, fmt.Errorf("%w: path is required", ErrInvalidConfig))
	}
	if mount == "" {
		mount = config.DefaultVaultMount
	}

	start := time.Now()
	var secret *vaultapi.KVSecret
	read := func(ctx context.Context) error {
		var err error
		secret, err = c.api.KVv2(mount).Get(ctx, path)
		return err
	}

	var err error
	if c.retry == nil {
		err = read(ctx)
	} else {
		err = retry.Do(ctx, c.retry, read, &retry.Options{
			ShouldRetry: isTransient,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				c.logger.Warn("vault read failed, retrying",
					observability.String("path", mount+"/"+path),
					observability.Int("attempt", attempt),
					observability.Duration("backoff", backoff),
					observability.Error(err),
				)
			},
		})
	}
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return nil, NewVaultError("kv_read", mount+"/"+path, ErrSecretNotFound)
		}
		return nil, NewVaultError("kv_read", mount+"/"+path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, NewVaultError("kv_read", mount+"/"+path, ErrSecretNotFound)
	}

	creds := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		s, ok := v.(string)
		if !ok {
			return nil, NewVaultError("kv_read", mount+"/"+path,
				fmt.Errorf("%w: field %q is %T, not a string", ErrInvalidSecret, k, v))
		}
		creds[k] = s
	}

	c.logger.Debug("read credentials from vault",
		observability.String("mount", mount),
		observability.String("path", path),
		observability.Int("fields", len(creds)),
		observability.Duration("duration", time.Since(start)),
	)

	return creds, nil
}

// isTransient reports whether a failed read may succeed when repeated.
func isTransient(err error) bool {
	if errors.Is(err, vaultapi.ErrSecretNotFound) {
		return false
	}
	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= 500 || respErr.StatusCode == 429
	}
	return true
}

// MergeCredentials overlays secret values on top of inline credentials
// without modifying either input.
func MergeCredentials(inline, fromSecret map[string]string) map[string]string {
	out := make(map[string]string, len(inline)+len(fromSecret))
	for k, v := range inline {
		out[k] = v
	}
	for k, v := range fromSecret {
		out[k] = v
	}
	return out
}

var _ CredentialReader = (*Client)(nil)
