package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// Scheme is one provider's authentication mechanism.
type Scheme interface {
	// Name returns the provider name.
	Name() string

	// Type returns the scheme identifier (token, qsauth, sas, oidc_password).
	Type() string

	// Validate checks the configuration and credentials without I/O.
	Validate() error

	// Authenticate returns a signer for outgoing requests. It may perform
	// network I/O and returns an AuthenticationError when no usable
	// credential could be obtained.
	Authenticate(ctx context.Context) (RequestSigner, error)
}

// schemeBase holds what every scheme shares.
type schemeBase struct {
	name        string
	schemeType  string
	cfg         *config.AuthConfig
	creds       Credentials
	logger      observability.Logger
	metrics     *Metrics
	baseClient  *http.Client
	client      *http.Client
	clock       func() time.Time
	identifying map[string]string
}

// SchemeOption is a functional option for configuring schemes.
type SchemeOption func(*schemeBase)

// WithLogger sets the logger for the scheme.
func WithLogger(logger observability.Logger) SchemeOption {
	return func(b *schemeBase) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics for the scheme.
func WithMetrics(metrics *Metrics) SchemeOption {
	return func(b *schemeBase) {
		b.metrics = metrics
	}
}

// WithHTTPClient sets the HTTP client used for outbound authentication
// calls. The configured timeout still applies.
func WithHTTPClient(client *http.Client) SchemeOption {
	return func(b *schemeBase) {
		b.baseClient = client
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) SchemeOption {
	return func(b *schemeBase) {
		b.clock = clock
	}
}

// WithIdentifyingHeaders replaces the headers sent on every outbound call.
func WithIdentifyingHeaders(headers map[string]string) SchemeOption {
	return func(b *schemeBase) {
		b.identifying = copyHeaders(headers)
	}
}

func newSchemeBase(name string, cfg *config.AuthConfig, creds Credentials, opts []SchemeOption) schemeBase {
	b := schemeBase{
		name:        name,
		schemeType:  cfg.Type,
		cfg:         cfg,
		creds:       creds,
		logger:      observability.NopLogger(),
		metrics:     NopMetrics(),
		clock:       time.Now,
		identifying: map[string]string{"User-Agent": config.DefaultUserAgent},
	}

	for _, opt := range opts {
		opt(&b)
	}

	b.client = newHTTPClient(b.baseClient, cfg.GetEffectiveTimeout(), b.identifying)
	b.logger = b.logger.With(
		observability.String("provider", name),
		observability.String("scheme", cfg.Type),
	)
	return b
}

// Name returns the provider name.
func (b *schemeBase) Name() string {
	return b.name
}

// Type returns the scheme identifier.
func (b *schemeBase) Type() string {
	return b.schemeType
}

// Validate checks the configuration and credentials.
func (b *schemeBase) Validate() error {
	if err := ValidateCredentials(b.cfg, b.creds); err != nil {
		var mErr *MisconfiguredError
		if errors.As(err, &mErr) && mErr.Provider == "" {
			mErr.Provider = b.name
		}
		return err
	}
	return nil
}

func (b *schemeBase) authError(operation, message string, cause error) *AuthenticationError {
	return NewAuthenticationError(b.name, operation, message, cause)
}

func (b *schemeBase) httpStatusError(operation string, resp *http.Response) *AuthenticationError {
	err := b.authError(operation, fmt.Sprintf("unexpected response %s", resp.Status), nil)
	err.StatusCode = resp.StatusCode
	return err
}

// NewScheme creates the scheme selected by cfg.Type. The configuration is
// cloned, so later changes to cfg do not affect the scheme.
func NewScheme(name string, cfg *config.AuthConfig, creds Credentials, opts ...SchemeOption) (Scheme, error) {
	if cfg == nil {
		return nil, &MisconfiguredError{Provider: name, Field: "auth", Message: "authentication configuration is required"}
	}
	cfg = cfg.Clone()

	switch cfg.Type {
	case config.SchemeToken:
		return NewTokenScheme(name, cfg, creds, opts...), nil
	case config.SchemeQueryString:
		return NewQueryStringScheme(name, cfg, creds, opts...), nil
	case config.SchemeSAS:
		return NewSASScheme(name, cfg, creds, opts...), nil
	case config.SchemeOIDCPassword:
		return NewOIDCPasswordScheme(name, cfg, creds, opts...), nil
	default:
		return nil, &MisconfiguredError{
			Provider: name,
			Field:    "type",
			Message:  fmt.Sprintf("unknown scheme %q", cfg.Type),
			Cause:    ErrUnsupportedScheme,
		}
	}
}

// MustNewScheme creates a scheme and panics on error.
func MustNewScheme(name string, cfg *config.AuthConfig, creds Credentials, opts ...SchemeOption) Scheme {
	scheme, err := NewScheme(name, cfg, creds, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create auth scheme: %v", err))
	}
	return scheme
}
