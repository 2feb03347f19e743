package kit

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/coordkit/cache"
	"github.com/kbukum/coordkit/component"
	"github.com/kbukum/coordkit/logger"
	"github.com/kbukum/coordkit/lock"
	"github.com/kbukum/coordkit/observability"
	"github.com/kbukum/coordkit/otp"
	"github.com/kbukum/coordkit/ratelimit"
	"github.com/kbukum/coordkit/redis"
	"github.com/kbukum/coordkit/resilience"
	"github.com/kbukum/coordkit/session"
)

// Kit owns the Redis component and the primitives built on it.
type Kit struct {
	Cfg        *Config
	Logger     *logger.Logger
	Components *component.Registry
	Metrics    *observability.CoordMetrics

	Cache    *cache.RedisCache[json.RawMessage]
	Sessions *session.RedisRegistry
	OTP      *otp.Verifier
	Locks    *lock.RedisLock
	Limiter  ratelimit.Limiter

	redis *redis.Component

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	mu        sync.Mutex
	breakers  map[string]*resilience.CircuitBreaker
	bulkheads map[string]*resilience.Bulkhead
}

// Option configures a Kit during creation.
type Option func(*kitOptions)

type kitOptions struct {
	logger  *logger.Logger
	metrics *observability.CoordMetrics
}

// WithLogger sets the logger instead of initializing one from cfg.Logging.
func WithLogger(l *logger.Logger) Option {
	return func(o *kitOptions) { o.logger = l }
}

// WithMetrics supplies an instrument set instead of building one from
// cfg.Observability.Metrics.
func WithMetrics(m *observability.CoordMetrics) Option {
	return func(o *kitOptions) { o.metrics = m }
}

// New applies defaults, validates cfg and registers the Redis component.
// Nothing connects until Start.
func New(cfg *Config, opts ...Option) (*Kit, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := &kitOptions{}
	for _, opt := range opts {
		opt(o)
	}

	k := &Kit{
		Cfg:        cfg,
		Metrics:    o.metrics,
		Components: component.NewRegistry(),
		breakers:   make(map[string]*resilience.CircuitBreaker),
		bulkheads:  make(map[string]*resilience.Bulkhead),
	}
	if o.logger != nil {
		k.Logger = o.logger
	} else {
		logger.Init(cfg.Logging)
		k.Logger = logger.GetGlobalLogger()
	}

	k.redis = redis.NewComponent(cfg.Redis, k.Logger)
	if err := k.Components.Register(k.redis); err != nil {
		return nil, err
	}
	return k, nil
}

// Start installs exporters when enabled, starts the components and builds
// the store-backed primitives.
func (k *Kit) Start(ctx context.Context) error {
	if err := k.startObservability(ctx); err != nil {
		return err
	}
	if err := k.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	client := k.redis.Client()
	c := k.Cfg

	k.Cache = NewCache[json.RawMessage](k)
	k.Sessions = session.NewRedisRegistry(client, session.WithTTL(duration(c.Session.TTL)))
	k.OTP = otp.NewVerifier(client,
		otp.WithMaxAttempts(c.OTP.MaxAttempts),
		otp.WithDefaultTTL(duration(c.OTP.DefaultTTL)),
		otp.WithMetrics(k.Metrics),
	)
	k.Locks = lock.New(client, lock.WithMetrics(k.Metrics))

	limiter, err := ratelimit.New(client, ratelimit.Algorithm(c.RateLimit.Algorithm), ratelimit.WithMetrics(k.Metrics))
	if err != nil {
		return err
	}
	k.Limiter = limiter

	k.Logger.Info("coordkit started", logger.Fields(
		logger.FieldName, c.Name,
		"key_prefix", client.Prefix(),
		"rate_limit", c.RateLimit.Algorithm,
	))
	return nil
}

func (k *Kit) startObservability(ctx context.Context) error {
	if k.Cfg.Observability.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, k.Cfg.tracerConfig())
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		k.tracerProvider = tp
	}
	if k.Cfg.Observability.Metrics.Enabled && k.Metrics == nil {
		mp, err := observability.InitMeter(ctx, k.Cfg.meterConfig())
		if err != nil {
			return fmt.Errorf("init meter: %w", err)
		}
		k.meterProvider = mp
		metrics, err := observability.NewCoordMetrics(observability.Meter("coordkit"))
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		k.Metrics = metrics
	}
	return nil
}

// Stop stops the components in reverse order and flushes exporters.
func (k *Kit) Stop(ctx context.Context) error {
	errs := []error{k.Components.StopAll(ctx)}
	if k.meterProvider != nil {
		errs = append(errs, k.meterProvider.Shutdown(ctx))
	}
	if k.tracerProvider != nil {
		errs = append(errs, k.tracerProvider.Shutdown(ctx))
	}
	return stderrors.Join(errs...)
}

// Client returns the shared Redis client, or nil before Start.
func (k *Kit) Client() *redis.Client {
	return k.redis.Client()
}

// Healthy reports whether every component is healthy.
func (k *Kit) Healthy(ctx context.Context) bool {
	return k.Components.Healthy(ctx)
}

// NewCache returns a typed cache over the kit's client. The namespace
// defaults to cfg.Cache.Namespace.
func NewCache[T any](k *Kit, opts ...cache.Option) *cache.RedisCache[T] {
	base := []cache.Option{
		cache.WithNamespace(k.Cfg.Cache.Namespace),
		cache.WithCounterTTL(duration(k.Cfg.Cache.CounterTTL)),
	}
	return cache.New[T](k.redis.Client(), append(base, opts...)...)
}

// IssueOTP generates a numeric code of the configured length, stores it for
// (id, purpose) with the default TTL and returns it for delivery.
func (k *Kit) IssueOTP(ctx context.Context, id string, purpose otp.Purpose) (string, error) {
	code, err := otp.GenerateNumeric(k.Cfg.OTP.Length)
	if err != nil {
		return "", err
	}
	if err := k.OTP.Store(ctx, id, purpose, code, duration(k.Cfg.OTP.DefaultTTL)); err != nil {
		return "", err
	}
	return code, nil
}

// Breaker returns the named circuit breaker, creating it on first use.
func (k *Kit) Breaker(name string) *resilience.CircuitBreaker {
	k.mu.Lock()
	defer k.mu.Unlock()
	if cb, ok := k.breakers[name]; ok {
		return cb
	}
	cfg := k.Cfg.breakerConfig(name)
	cfg.Metrics = k.Metrics
	cfg.Logger = k.Logger
	cb := resilience.NewCircuitBreaker(cfg)
	k.breakers[name] = cb
	return cb
}

// Bulkhead returns the named bulkhead, creating it on first use.
func (k *Kit) Bulkhead(name string) *resilience.Bulkhead {
	k.mu.Lock()
	defer k.mu.Unlock()
	if b, ok := k.bulkheads[name]; ok {
		return b
	}
	cfg := k.Cfg.bulkheadConfig(name)
	cfg.Metrics = k.Metrics
	cfg.Logger = k.Logger
	b := resilience.NewBulkhead(cfg)
	k.bulkheads[name] = b
	return b
}

// Retry returns a retry policy built from the configured defaults.
func (k *Kit) Retry() *resilience.RetryPolicy {
	cfg := k.Cfg.retryConfig()
	cfg.Metrics = k.Metrics
	cfg.Logger = k.Logger
	return resilience.NewRetryPolicy(cfg)
}

// Policy composes retry, the named breaker and bulkhead, and the configured
// per-attempt timeout.
func (k *Kit) Policy(name string) *resilience.Policy {
	var timeout time.Duration
	if k.Cfg.Resilience.Timeout != "" {
		timeout = duration(k.Cfg.Resilience.Timeout)
	}
	return &resilience.Policy{
		Name:     name,
		Retry:    k.Retry(),
		Breaker:  k.Breaker(name),
		Bulkhead: k.Bulkhead(name),
		Timeout:  timeout,
		Metrics:  k.Metrics,
	}
}
