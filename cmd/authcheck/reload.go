package main

import (
	"context"
	"reflect"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// startConfigWatcher starts the configuration watcher.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) {
		logger.Info("configuration changed, reloading providers")
		app.reload(ctx, newCfg)
	}, config.WithLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// reload rebuilds the schemes of providers whose configuration changed and
// drops removed providers. A provider that fails to rebuild keeps its
// previous scheme and is retried on every later reload until it succeeds.
func (app *application) reload(ctx context.Context, newCfg *config.GatewayConfig) {
	app.mu.Lock()
	defer app.mu.Unlock()

	oldCfg := app.config
	headersChanged := !reflect.DeepEqual(identifyingHeaders(oldCfg), identifyingHeaders(newCfg))
	if !reflect.DeepEqual(oldCfg.Breaker, newCfg.Breaker) {
		app.logger.Warn("breaker settings changed; they take effect on restart")
	}

	if app.stale == nil {
		app.stale = make(map[string]bool)
	}

	seen := make(map[string]bool, len(newCfg.Providers))
	for i := range newCfg.Providers {
		p := &newCfg.Providers[i]
		seen[p.Name] = true

		prev, existed := oldCfg.Provider(p.Name)
		if existed && !headersChanged && !app.stale[p.Name] && reflect.DeepEqual(*prev, *p) {
			continue
		}

		scheme, err := app.buildScheme(ctx, newCfg, p)
		if err != nil {
			app.logger.Error("failed to rebuild provider, keeping previous scheme",
				observability.String("provider", p.Name),
				observability.Error(err),
			)
			app.stale[p.Name] = true
			continue
		}

		delete(app.stale, p.Name)
		app.coordinator.Replace(scheme)
		app.metrics.Init(map[string]string{p.Name: p.Auth.Type})
		app.logger.Info("provider reloaded",
			observability.String("provider", p.Name),
			observability.String("scheme", p.Auth.Type),
		)
	}

	for name := range app.stale {
		if !seen[name] {
			delete(app.stale, name)
		}
	}
	for _, name := range app.coordinator.Providers() {
		if !seen[name] && app.coordinator.Remove(name) {
			app.logger.Info("provider removed", observability.String("provider", name))
		}
	}

	app.config = newCfg
}
