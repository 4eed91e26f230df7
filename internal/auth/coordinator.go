package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

// Coordinator owns the schemes of all providers and runs their
// authentication: validation once per scheme instance, a circuit breaker
// per provider, tracing and metrics.
type Coordinator struct {
	mu      sync.RWMutex
	entries map[string]*entry

	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer
	breaker *config.BreakerConfig
}

// entry is one registered scheme. Replacing a scheme creates a new entry,
// which resets validation and the breaker.
type entry struct {
	scheme Scheme

	validateOnce sync.Once
	validateErr  error

	breaker *gobreaker.CircuitBreaker
}

// CoordinatorOption is a functional option for configuring the coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger for the coordinator.
func WithCoordinatorLogger(logger observability.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithCoordinatorMetrics sets the metrics for the coordinator.
func WithCoordinatorMetrics(metrics *Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithTracer sets the tracer for the coordinator.
func WithTracer(tracer trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// WithBreaker configures the per-provider circuit breaker. A nil or
// disabled configuration turns breakers off.
func WithBreaker(cfg *config.BreakerConfig) CoordinatorOption {
	return func(c *Coordinator) {
		c.breaker = cfg
	}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		entries: make(map[string]*entry),
		logger:  observability.NopLogger(),
		metrics: NopMetrics(),
		tracer:  otel.Tracer("eogate/auth"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a scheme under its provider name.
func (c *Coordinator) Register(scheme Scheme) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := scheme.Name()
	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	c.entries[name] = c.newEntry(scheme)
	return nil
}

// Replace registers scheme, dropping any scheme previously registered under
// the same provider name along with its validation result and breaker.
func (c *Coordinator) Replace(scheme Scheme) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scheme.Name()] = c.newEntry(scheme)
}

// Remove drops the scheme registered for provider.
func (c *Coordinator) Remove(provider string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[provider]; !ok {
		return false
	}
	delete(c.entries, provider)
	return true
}

// Get returns the scheme registered for provider.
func (c *Coordinator) Get(provider string) (Scheme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[provider]
	if !ok {
		return nil, false
	}
	return e.scheme, true
}

// Providers returns the registered provider names in sorted order.
func (c *Coordinator) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Coordinator) newEntry(scheme Scheme) *entry {
	e := &entry{scheme: scheme}
	if c.breaker == nil || !c.breaker.Enabled {
		return e
	}

	maxFailures := safeIntToUint32(c.breaker.GetEffectiveMaxFailures())
	logger := c.logger
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        scheme.Name(),
		MaxRequests: 1,
		Timeout:     c.breaker.GetEffectiveOpenTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Configuration errors and abandoned waits say nothing about
		// the endpoint's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrMisconfigured) ||
				errors.Is(err, ErrAuthPending) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("auth circuit breaker state change",
				observability.String("provider", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
	return e
}

func (c *Coordinator) lookup(provider string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[provider]
	return e, ok
}

// Authenticate returns a signer for provider. Errors match ErrProviderNotFound,
// ErrMisconfigured, ErrAuthentication (ErrCircuitOpen when the breaker is
// open) or ErrAuthPending.
func (c *Coordinator) Authenticate(ctx context.Context, provider string) (RequestSigner, error) {
	e, ok := c.lookup(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, provider)
	}
	scheme := e.scheme

	attemptID := uuid.NewString()
	ctx = observability.ContextWithAttemptID(ctx, attemptID)
	ctx, span := c.tracer.Start(ctx, "auth.authenticate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("auth.provider", provider),
			attribute.String("auth.scheme", scheme.Type()),
			attribute.String("auth.attempt_id", attemptID),
		),
	)
	defer span.End()

	logger := c.logger.WithContext(ctx).With(
		observability.String("provider", provider),
		observability.String("scheme", scheme.Type()),
	)

	start := time.Now()
	signer, err := c.authenticate(ctx, e)
	duration := time.Since(start)

	if err != nil {
		c.metrics.RecordAuthenticate(provider, scheme.Type(), "error", duration)
		c.metrics.RecordError(provider, scheme.Type(), errorType(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("authentication failed",
			observability.Error(err),
			observability.Duration("duration", duration),
		)
		return nil, err
	}

	c.metrics.RecordAuthenticate(provider, scheme.Type(), "success", duration)
	span.SetStatus(codes.Ok, "")
	logger.Debug("authenticated", observability.Duration("duration", duration))
	return signer, nil
}

func (c *Coordinator) authenticate(ctx context.Context, e *entry) (RequestSigner, error) {
	e.validateOnce.Do(func() {
		e.validateErr = e.scheme.Validate()
	})
	if e.validateErr != nil {
		return nil, e.validateErr
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthPending, err)
	}

	var signer RequestSigner
	var err error
	if e.breaker == nil {
		signer, err = e.scheme.Authenticate(ctx)
	} else {
		var res interface{}
		res, err = e.breaker.Execute(func() (interface{}, error) {
			return e.scheme.Authenticate(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewAuthenticationError(e.scheme.Name(), "authenticate", "provider temporarily disabled", ErrCircuitOpen)
		}
		if err == nil {
			signer = res.(RequestSigner)
		}
	}

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrAuthPending) {
			return nil, fmt.Errorf("%w: %w", ErrAuthPending, err)
		}
		return nil, err
	}
	return signer, nil
}

// AuthenticateAll authenticates every registered provider. The returned
// maps hold the signer or the error of each provider.
func (c *Coordinator) AuthenticateAll(ctx context.Context) (map[string]RequestSigner, map[string]error) {
	providers := c.Providers()
	signers := make(map[string]RequestSigner, len(providers))
	errs := make(map[string]error)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range providers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			signer, err := c.Authenticate(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[name] = err
				return
			}
			signers[name] = signer
		}(name)
	}
	wg.Wait()

	return signers, errs
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
