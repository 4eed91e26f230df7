package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/eogate/internal/config"
)

// urlPlaceholder is the SAS placeholder for the resource being signed.
const urlPlaceholder = "url"

// ValidateCredentials checks that cfg and creds are complete enough for the
// scheme selected by cfg.Type. It performs no I/O and may be called any
// number of times.
func ValidateCredentials(cfg *config.AuthConfig, creds Credentials) error {
	if cfg == nil {
		return NewMisconfiguredError("auth", "authentication configuration is required")
	}

	switch cfg.Type {
	case config.SchemeToken:
		return validateToken(cfg, creds)
	case config.SchemeQueryString:
		return validateQueryString(cfg, creds)
	case config.SchemeSAS:
		return validateSAS(cfg, creds)
	case config.SchemeOIDCPassword:
		return validateOIDCPassword(cfg, creds)
	default:
		return &MisconfiguredError{
			Field:   "type",
			Message: fmt.Sprintf("unknown scheme %q", cfg.Type),
			Cause:   ErrUnsupportedScheme,
		}
	}
}

func validateToken(cfg *config.AuthConfig, creds Credentials) error {
	if err := requireCredentials(creds); err != nil {
		return err
	}
	if err := requireResolvedURI(cfg.AuthURI, creds); err != nil {
		return err
	}
	if _, err := ResolveHeaders(cfg.Headers, creds); err != nil {
		return err
	}

	switch cfg.GetEffectiveTokenType() {
	case config.TokenTypeText:
	case config.TokenTypeJSON:
		if cfg.TokenKey == "" {
			return NewMisconfiguredError("token_key", "required when token_type is json")
		}
	default:
		return NewMisconfiguredError("token_type", fmt.Sprintf("must be text or json, got %q", cfg.TokenType))
	}
	return nil
}

func validateQueryString(cfg *config.AuthConfig, creds Credentials) error {
	if err := requireCredentials(creds); err != nil {
		return err
	}
	return requireResolvedURI(cfg.AuthURI, creds)
}

// validateSAS accepts empty credentials: signed URLs may be fetched
// anonymously, in which case no header is sent and placeholders other
// than {url} are only checked when signing.
func validateSAS(cfg *config.AuthConfig, creds Credentials) error {
	if cfg.AuthURI == "" {
		return NewMisconfiguredError("auth_uri", "required")
	}
	if !contains(Placeholders(cfg.AuthURI), urlPlaceholder) {
		return NewMisconfiguredError("auth_uri", "must contain the {url} placeholder")
	}

	if len(creds) > 0 {
		// {url} is only known at signing time.
		if err := requireResolvedURI(cfg.AuthURI, creds.with(urlPlaceholder, "")); err != nil {
			return err
		}
		if _, err := ResolveHeaders(cfg.Headers, creds); err != nil {
			return err
		}
	}
	return nil
}

func validateOIDCPassword(cfg *config.AuthConfig, creds Credentials) error {
	if creds["username"] == "" {
		return NewMisconfiguredError("credentials.username", "required")
	}

	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"auth_base_uri", cfg.AuthBaseURI},
		{"realm", cfg.Realm},
		{"client_id", cfg.ClientID},
		{"client_secret", cfg.ClientSecret},
		{"token_provision", cfg.TokenProvision},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return NewMisconfiguredError(strings.Join(missing, ", "), "required")
	}

	switch cfg.TokenProvision {
	case config.TokenProvisionHeader:
	case config.TokenProvisionQuery:
		if cfg.TokenQSKey == "" {
			return NewMisconfiguredError("token_qs_key", "required when token_provision is qs")
		}
	default:
		return NewMisconfiguredError("token_provision",
			fmt.Sprintf("must be header or qs, got %q", cfg.TokenProvision))
	}
	return nil
}

func requireCredentials(creds Credentials) error {
	if len(creds) == 0 {
		return NewMisconfiguredError("credentials", "missing credentials")
	}
	return nil
}

func requireResolvedURI(uri string, vars Credentials) error {
	if uri == "" {
		return NewMisconfiguredError("auth_uri", "required")
	}
	if _, err := ResolveTemplate(uri, vars); err != nil {
		var mErr *MisconfiguredError
		if errors.As(err, &mErr) {
			mErr.Field = "auth_uri"
		}
		return err
	}
	return nil
}
