// Package config provides the configuration model for the authentication
// gateway: per-provider authentication descriptors, credential sources,
// YAML loading with environment variable substitution, structural
// validation and file watching for hot-reload.
//
// The authentication core consumes fully resolved AuthConfig values and
// never reads files or the environment itself; everything in this package
// runs before a scheme is built.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("eogate.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// # File Watching
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.GatewayConfig) {
//	    // rebuild the affected schemes
//	}, config.WithLogger(logger))
package config
