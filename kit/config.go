package kit

import (
	"fmt"
	"time"

	"github.com/kbukum/coordkit/config"
	"github.com/kbukum/coordkit/observability"
	"github.com/kbukum/coordkit/ratelimit"
	"github.com/kbukum/coordkit/redis"
	"github.com/kbukum/coordkit/resilience"
	"github.com/kbukum/coordkit/validation"
)

// Config is the complete coordkit configuration. Durations are strings
// ("250ms", "1m") parsed by ApplyDefaults and Validate.
//
//	name: checkout
//	redis:
//	  addr: localhost:6379
//	  key_prefix: checkout
//	rate_limit:
//	  algorithm: fixed_window
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Redis         redis.Config        `yaml:"redis" mapstructure:"redis"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Session       SessionConfig       `yaml:"session" mapstructure:"session"`
	OTP           OTPConfig           `yaml:"otp" mapstructure:"otp"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" mapstructure:"rate_limit"`
	Resilience    ResilienceConfig    `yaml:"resilience" mapstructure:"resilience"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// CacheConfig configures the default cache namespace.
type CacheConfig struct {
	Namespace  string `yaml:"namespace" mapstructure:"namespace"`
	CounterTTL string `yaml:"counter_ttl" mapstructure:"counter_ttl"`
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	TTL string `yaml:"ttl" mapstructure:"ttl"`
}

// OTPConfig configures the one-time-password verifier.
type OTPConfig struct {
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0,lte=20"`
	DefaultTTL  string `yaml:"default_ttl" mapstructure:"default_ttl"`
	Length      int    `yaml:"length" mapstructure:"length" validate:"gte=0,lte=32"`
}

// RateLimitConfig selects the rate limiting algorithm.
type RateLimitConfig struct {
	Algorithm string `yaml:"algorithm" mapstructure:"algorithm" validate:"omitempty,oneof=sliding_window fixed_window"`
}

// ResilienceConfig holds the defaults for breakers, bulkheads and retries
// handed out by Kit.
type ResilienceConfig struct {
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Bulkhead BulkheadConfig `yaml:"bulkhead" mapstructure:"bulkhead"`
	// Timeout bounds each attempt made through Kit.Policy. Empty disables it.
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// BreakerConfig configures circuit breakers.
type BreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=0"`
	SuccessThreshold int    `yaml:"success_threshold" mapstructure:"success_threshold" validate:"gte=0"`
	Timeout          string `yaml:"timeout" mapstructure:"timeout"`
}

// RetryConfig configures retry policies.
type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=20"`
	InitialBackoff string  `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     string  `yaml:"max_backoff" mapstructure:"max_backoff"`
	Multiplier     float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=0"`
	Jitter         float64 `yaml:"jitter" mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// BulkheadConfig configures bulkheads.
type BulkheadConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=0"`
	MaxWait       string `yaml:"max_wait" mapstructure:"max_wait"`
}

// ObservabilityConfig enables OTLP export of traces and metrics.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig configures the OTLP metric exporter.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
	Interval string `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills unset fields. The Redis component is always enabled.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()

	c.Redis.Enabled = true
	if c.Redis.KeyPrefix == "" && c.Name != "" {
		c.Redis.KeyPrefix = c.Name
	}
	c.Redis.ApplyDefaults()

	setDefault(&c.Cache.Namespace, redis.DomainCache)
	setDefault(&c.Cache.CounterTTL, "1h")
	setDefault(&c.Session.TTL, "24h")

	if c.OTP.MaxAttempts == 0 {
		c.OTP.MaxAttempts = 3
	}
	setDefault(&c.OTP.DefaultTTL, "5m")
	if c.OTP.Length == 0 {
		c.OTP.Length = 6
	}

	setDefault(&c.RateLimit.Algorithm, string(ratelimit.AlgorithmSlidingWindow))

	b := &c.Resilience.Breaker
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.SuccessThreshold == 0 {
		b.SuccessThreshold = 2
	}
	setDefault(&b.Timeout, "60s")

	r := &c.Resilience.Retry
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	setDefault(&r.InitialBackoff, "100ms")
	setDefault(&r.MaxBackoff, "10s")
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	}

	if c.Resilience.Bulkhead.MaxConcurrent == 0 {
		c.Resilience.Bulkhead.MaxConcurrent = 10
	}

	t := &c.Observability.Tracing
	setDefault(&t.Endpoint, "localhost:4318")
	if t.SampleRate == 0 {
		t.SampleRate = 1.0
	}
	m := &c.Observability.Metrics
	setDefault(&m.Endpoint, "localhost:4318")
	setDefault(&m.Interval, "15s")
}

// Validate checks every section. Field errors are reported together.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("config.redis: %w", err)
	}
	if err := validation.Validate(c); err != nil {
		return err
	}

	v := validation.New()
	for _, d := range []struct {
		field, value string
		optional     bool
	}{
		{"cache.counter_ttl", c.Cache.CounterTTL, false},
		{"session.ttl", c.Session.TTL, false},
		{"otp.default_ttl", c.OTP.DefaultTTL, false},
		{"resilience.breaker.timeout", c.Resilience.Breaker.Timeout, false},
		{"resilience.retry.initial_backoff", c.Resilience.Retry.InitialBackoff, false},
		{"resilience.retry.max_backoff", c.Resilience.Retry.MaxBackoff, false},
		{"resilience.bulkhead.max_wait", c.Resilience.Bulkhead.MaxWait, true},
		{"resilience.timeout", c.Resilience.Timeout, true},
		{"observability.metrics.interval", c.Observability.Metrics.Interval, false},
	} {
		if d.optional && d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		v.Custom(err == nil && parsed > 0, d.field, fmt.Sprintf("must be a positive duration (got %q)", d.value))
	}

	r := c.Resilience.Retry
	if lo, hi := duration(r.InitialBackoff), duration(r.MaxBackoff); lo > 0 && hi > 0 {
		v.Custom(hi >= lo, "resilience.retry.max_backoff", "must not be below initial_backoff")
	}
	return v.Err()
}

func (c *Config) breakerConfig(name string) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.FailureThreshold = c.Resilience.Breaker.FailureThreshold
	cfg.SuccessThreshold = c.Resilience.Breaker.SuccessThreshold
	cfg.Timeout = duration(c.Resilience.Breaker.Timeout)
	return cfg
}

func (c *Config) retryConfig() resilience.RetryConfig {
	r := c.Resilience.Retry
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxRetries = r.MaxRetries
	cfg.InitialBackoff = duration(r.InitialBackoff)
	cfg.MaxBackoff = duration(r.MaxBackoff)
	cfg.Multiplier = r.Multiplier
	cfg.Jitter = r.Jitter
	return cfg
}

func (c *Config) bulkheadConfig(name string) resilience.BulkheadConfig {
	cfg := resilience.DefaultBulkheadConfig(name)
	cfg.MaxConcurrent = c.Resilience.Bulkhead.MaxConcurrent
	cfg.MaxWait = duration(c.Resilience.Bulkhead.MaxWait)
	return cfg
}

func (c *Config) tracerConfig() *observability.TracerConfig {
	cfg := observability.DefaultTracerConfig(c.Name)
	cfg.ServiceVersion = c.Version
	cfg.Environment = c.Environment
	cfg.Endpoint = c.Observability.Tracing.Endpoint
	cfg.Insecure = c.Observability.Tracing.Insecure
	cfg.SampleRate = c.Observability.Tracing.SampleRate
	return cfg
}

func (c *Config) meterConfig() *observability.MeterConfig {
	cfg := observability.DefaultMeterConfig(c.Name)
	cfg.ServiceVersion = c.Version
	cfg.Environment = c.Environment
	cfg.Endpoint = c.Observability.Metrics.Endpoint
	cfg.Insecure = c.Observability.Metrics.Insecure
	cfg.Interval = duration(c.Observability.Metrics.Interval)
	return cfg
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// duration parses a validated duration string; empty or invalid yields 0.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
