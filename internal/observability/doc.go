// Package observability provides structured logging and tracing setup
// shared by the authentication core and the authcheck command.
//
// Logging wraps zap behind the Logger interface so that components can
// default to NopLogger and accept a real logger through options:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
// Tracing installs a global OpenTelemetry tracer provider, exporting over
// OTLP/gRPC when an endpoint is configured.
package observability
