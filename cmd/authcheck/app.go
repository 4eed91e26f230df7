package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/vyrodovalexey/eogate/internal/auth"
	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
	"github.com/vyrodovalexey/eogate/internal/vault"
)

// application holds all application components.
type application struct {
	coordinator   *auth.Coordinator
	metrics       *auth.Metrics
	tracer        *observability.Tracer
	credentials   vault.CredentialReader
	logger        observability.Logger
	metricsServer *http.Server

	mu     sync.Mutex
	config *config.GatewayConfig
	// stale holds providers whose running scheme predates a failed rebuild.
	stale map[string]bool
}

// initApplication initializes tracing, the Vault client and every provider.
func initApplication(ctx context.Context, cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	tracer, err := initTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	reader, err := initVaultClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	return newApplication(ctx, cfg, logger, tracer, reader)
}

// initTracer initializes the tracer.
func initTracer(ctx context.Context, cfg *config.GatewayConfig) (*observability.Tracer, error) {
	tracerCfg := observability.TracerConfig{
		ServiceName:  "eogate",
		SamplingRate: 1.0,
	}
	if cfg.Tracing != nil {
		tracerCfg.Enabled = cfg.Tracing.Enabled
		tracerCfg.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
		if cfg.Tracing.SamplingRate > 0 {
			tracerCfg.SamplingRate = cfg.Tracing.SamplingRate
		}
	}
	return observability.NewTracer(ctx, tracerCfg)
}

// newApplication builds the coordinator and registers a scheme per provider.
func newApplication(
	ctx context.Context,
	cfg *config.GatewayConfig,
	logger observability.Logger,
	tracer *observability.Tracer,
	reader vault.CredentialReader,
) (*application, error) {
	metrics := auth.NewMetrics("eogate")
	coordinator := auth.NewCoordinator(
		auth.WithCoordinatorLogger(logger),
		auth.WithCoordinatorMetrics(metrics),
		auth.WithTracer(tracer.Tracer()),
		auth.WithBreaker(cfg.Breaker),
	)

	app := &application{
		coordinator: coordinator,
		metrics:     metrics,
		tracer:      tracer,
		credentials: reader,
		logger:      logger,
		config:      cfg,
	}

	schemes := make(map[string]string, len(cfg.Providers))
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		scheme, err := app.buildScheme(ctx, cfg, p)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		if err := coordinator.Register(scheme); err != nil {
			return nil, err
		}
		schemes[p.Name] = p.Auth.Type
	}
	metrics.Init(schemes)

	return app, nil
}

// buildScheme resolves the provider's credentials and creates its scheme.
func (app *application) buildScheme(
	ctx context.Context,
	cfg *config.GatewayConfig,
	p *config.ProviderConfig,
) (auth.Scheme, error) {
	creds, err := resolveCredentials(ctx, app.credentials, p)
	if err != nil {
		return nil, err
	}

	return auth.NewScheme(p.Name, &p.Auth, creds,
		auth.WithLogger(app.logger),
		auth.WithMetrics(app.metrics),
		auth.WithIdentifyingHeaders(identifyingHeaders(cfg)),
	)
}

// identifyingHeaders returns the headers sent on every outbound
// authentication call.
func identifyingHeaders(cfg *config.GatewayConfig) map[string]string {
	userAgent := "eogate/" + version
	if cfg != nil && cfg.UserAgent != "" {
		userAgent = cfg.UserAgent
	}
	return map[string]string{"User-Agent": userAgent}
}

// currentConfig returns the configuration the providers were built from.
func (app *application) currentConfig() *config.GatewayConfig {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.config
}

// shutdownTracer flushes pending spans.
func shutdownTracer(app *application, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}
}
