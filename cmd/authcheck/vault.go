package main

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/eogate/internal/auth"
	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
	"github.com/vyrodovalexey/eogate/internal/vault"
)

// initVaultClient creates the Vault client when Vault is configured.
func initVaultClient(cfg *config.GatewayConfig, logger observability.Logger) (vault.CredentialReader, error) {
	if cfg.Vault == nil || cfg.Vault.Address == "" {
		return nil, nil
	}

	client, err := vault.New(cfg.Vault, vault.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	logger.Info("vault credential source enabled", observability.String("address", cfg.Vault.Address))
	return client, nil
}

// resolveCredentials merges the provider's inline credentials with the ones
// read from Vault; Vault entries win.
func resolveCredentials(
	ctx context.Context,
	reader vault.CredentialReader,
	p *config.ProviderConfig,
) (auth.Credentials, error) {
	if p.CredentialsFrom == nil {
		return auth.Credentials(vault.MergeCredentials(p.Credentials, nil)), nil
	}
	if reader == nil {
		return nil, fmt.Errorf("credentials_from requires a configured vault")
	}

	secret, err := reader.ReadCredentials(ctx, p.CredentialsFrom.GetEffectiveMount(), p.CredentialsFrom.Path)
	if err != nil {
		return nil, err
	}
	return auth.Credentials(vault.MergeCredentials(p.Credentials, secret)), nil
}
