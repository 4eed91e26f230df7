package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

var knownSchemes = map[string]bool{
	SchemeToken:        true,
	SchemeQueryString:  true,
	SchemeSAS:          true,
	SchemeOIDCPassword: true,
}

// IsKnownScheme reports whether t is a supported scheme identifier.
func IsKnownScheme(t string) bool {
	return knownSchemes[t]
}

// ValidateConfig checks the structure of the configuration. Per-scheme
// credential rules are enforced by the authentication core when a scheme is
// validated, since credentials may arrive from Vault after loading.
func ValidateConfig(cfg *GatewayConfig) error {
	if cfg == nil {
		return ValidationErrors{{Message: "configuration is nil"}}
	}

	var errs ValidationErrors
	seen := make(map[string]bool, len(cfg.Providers))

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		path := fmt.Sprintf("providers[%d]", i)

		if p.Name == "" {
			errs = append(errs, ValidationError{Path: path + ".name", Message: "name is required"})
		} else if seen[p.Name] {
			errs = append(errs, ValidationError{Path: path + ".name", Message: "duplicate provider " + p.Name})
		}
		seen[p.Name] = true

		if !IsKnownScheme(p.Auth.Type) {
			errs = append(errs, ValidationError{
				Path:    path + ".auth.type",
				Message: fmt.Sprintf("unsupported scheme %q", p.Auth.Type),
			})
		}

		if p.Auth.Timeout.Duration() < 0 {
			errs = append(errs, ValidationError{Path: path + ".auth.timeout", Message: "must not be negative"})
		}

		if p.CredentialsFrom != nil {
			if p.CredentialsFrom.Path == "" {
				errs = append(errs, ValidationError{Path: path + ".credentials_from.path", Message: "path is required"})
			}
			if cfg.Vault == nil || cfg.Vault.Address == "" {
				errs = append(errs, ValidationError{
					Path:    path + ".credentials_from",
					Message: "vault.address is required to read credentials from Vault",
				})
			}
		}
	}

	if cfg.Breaker != nil && cfg.Breaker.MaxFailures < 0 {
		errs = append(errs, ValidationError{Path: "breaker.max_failures", Message: "must not be negative"})
	}

	if cfg.Vault != nil && cfg.Vault.MaxRetries < 0 {
		errs = append(errs, ValidationError{Path: "vault.max_retries", Message: "must not be negative"})
	}

	if cfg.Tracing != nil && (cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1) {
		errs = append(errs, ValidationError{Path: "tracing.sampling_rate", Message: "must be between 0 and 1"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
