// Package main is the entry point for authcheck. It loads the provider
// configuration, authenticates every provider and reports the outcome, or
// keeps the providers authenticated and exports their metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	provider    string
	signURL     string
	metricsAddr string
	interval    time.Duration
	serve       bool
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)

	cfg := loadAndValidateConfig(flags.configPath, logger)

	ctx := context.Background()
	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize providers", observability.Error(err))
	}

	if flags.serve {
		runServer(ctx, app, flags, logger)
		_ = logger.Sync()
		return
	}

	code := runOnce(ctx, app, flags, os.Stdout)
	shutdownTracer(app, logger)
	_ = logger.Sync()
	os.Exit(code)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("EOGATE_CONFIG_PATH", "configs/eogate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("EOGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("EOGATE_LOG_FORMAT", "console"),
		"Log format (json, console)")
	provider := flag.String("provider", "", "Check a single provider instead of all of them")
	signURL := flag.String("sign-url", "", "Sign this URL with the provider's signer (requires -provider)")
	serve := flag.Bool("serve", getEnvBool("EOGATE_SERVE", false),
		"Keep providers authenticated and serve metrics until interrupted")
	metricsAddr := flag.String("metrics-addr", getEnvOrDefault("EOGATE_METRICS_ADDR", ":9090"),
		"Metrics listen address in serve mode")
	interval := flag.Duration("interval", 30*time.Second, "Re-authentication interval in serve mode")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		provider:    *provider,
		signURL:     *signURL,
		metricsAddr: *metricsAddr,
		interval:    *interval,
		serve:       *serve,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("eogate authcheck version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting eogate authcheck",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.Int("providers", len(cfg.Providers)),
		observability.Bool("vault", cfg.Vault != nil && cfg.Vault.Address != ""),
	)

	return cfg
}
