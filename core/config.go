package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the governed mission runtime.
//
// Configuration follows the three-layer priority used throughout this
// codebase:
//  1. Defaults (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options passed to NewConfig (highest priority)
//
// The env struct tags name each field's variable, but only the variables
// read in loadFromEnv are applied; the other tagged fields keep their
// defaults unless an Option sets them.
//
// Loading configuration from files, flags, or any external system is out of
// scope for the core (SPEC_FULL.md §1) — NewConfig only assembles the
// in-process tunables a Controller needs to run.
type Config struct {
	Runtime    RuntimeConfig
	Simulator  SimulatorConfig
	Policy     PolicyConfig
	AI         AIConfig
	Resilience ResilienceConfig
	Logging    LoggingConfig
	Store      StoreConfig

	logger Logger
}

// RuntimeConfig tunes the Run Controller's tick loop (spec.md §4.6, §4.7).
// MaxReplans, MaxSteps, MemoryWindow, PromptMemoryWindow,
// DenialThrottleWindow and DenialThrottleCount carry the agentic planner's
// budget values, but the planner package uses its own constants and does
// not read these fields.
type RuntimeConfig struct {
	TickInterval              time.Duration `env:"GOVERNOR_TICK_INTERVAL" default:"100ms"`
	MaxConsecutiveSimFailures int           `env:"GOVERNOR_MAX_SIM_FAILURES" default:"3"`
	MaxReplans                int           `env:"GOVERNOR_MAX_REPLANS" default:"2"`
	MaxSteps                  int           `env:"GOVERNOR_MAX_STEPS" default:"3"`
	MemoryWindow              int           `env:"GOVERNOR_MEMORY_WINDOW" default:"20"`
	PromptMemoryWindow        int           `env:"GOVERNOR_PROMPT_MEMORY_WINDOW" default:"8"`
	DenialThrottleWindow      int           `env:"GOVERNOR_DENIAL_THROTTLE_WINDOW" default:"5"`
	DenialThrottleCount       int           `env:"GOVERNOR_DENIAL_THROTTLE_COUNT" default:"3"`
	ShutdownTimeout           time.Duration `env:"GOVERNOR_SHUTDOWN_TIMEOUT" default:"5s"`
}

// SimulatorConfig configures the HTTP client talking to the environment
// simulator (spec.md §4.4, §6).
type SimulatorConfig struct {
	BaseURL        string        `env:"GOVERNOR_SIM_BASE_URL" default:"http://localhost:9000"`
	SharedSecret   string        `env:"GOVERNOR_SIM_SHARED_SECRET"`
	Timeout        time.Duration `env:"GOVERNOR_SIM_TIMEOUT" default:"5s"`
	MaxIdleConns   int           `env:"GOVERNOR_SIM_MAX_IDLE_CONNS" default:"20"`
}

// PolicyConfig carries the rule thresholds from spec.md §4.3 as tunable
// configuration instead of hardcoded constants.
type PolicyConfig struct {
	GeofenceMinX float64 `env:"GOVERNOR_GEOFENCE_MIN_X" default:"0"`
	GeofenceMaxX float64 `env:"GOVERNOR_GEOFENCE_MAX_X" default:"40"`
	GeofenceMinY float64 `env:"GOVERNOR_GEOFENCE_MIN_Y" default:"0"`
	GeofenceMaxY float64 `env:"GOVERNOR_GEOFENCE_MAX_Y" default:"25"`

	ZoneSpeedLimits map[string]float64 // aisle=0.5, corridor=0.7, loading_bay=0.4

	MinObstacleClearanceM float64 `env:"GOVERNOR_MIN_OBSTACLE_CLEARANCE_M" default:"0.5"`
	MinHumanConfidence    float64 `env:"GOVERNOR_MIN_HUMAN_CONFIDENCE" default:"0.65"`
	MaxSpeedNearHuman     float64 `env:"GOVERNOR_MAX_SPEED_NEAR_HUMAN" default:"0.4"`
	HumanSlowRadiusM      float64 `env:"GOVERNOR_HUMAN_SLOW_RADIUS_M" default:"3.0"`
	HumanStopRadiusM      float64 `env:"GOVERNOR_HUMAN_STOP_RADIUS_M" default:"1.0"`
	ReviewRiskThreshold   float64 `env:"GOVERNOR_REVIEW_RISK_THRESHOLD" default:"0.75"`

	MinSpeed float64 `env:"GOVERNOR_MIN_SPEED" default:"0.1"`
	MaxSpeed float64 `env:"GOVERNOR_MAX_SPEED" default:"1.0"`
}

// AIConfig configures the reasoning provider cascade (spec.md §4.5, §4.6).
type AIConfig struct {
	ProviderCascade []string      `env:"GOVERNOR_AI_PROVIDERS"` // ordered, fastest-first
	Timeout         time.Duration `env:"GOVERNOR_AI_TIMEOUT" default:"10s"`
	Temperature     float32       `env:"GOVERNOR_AI_TEMPERATURE" default:"0.3"`
	MaxTokens        int          `env:"GOVERNOR_AI_MAX_TOKENS" default:"800"`
	// APIKeyEnv maps provider name -> environment variable holding its key.
	APIKeyEnv map[string]string
	// BaseURLEnv maps provider name -> environment variable holding its base URL.
	BaseURLEnv map[string]string
}

// ResilienceConfig configures the circuit breaker and retry policy shared by
// the simulator adapter and the reasoning client.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
	RetryMaxAttempts   int           `env:"GOVERNOR_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialDelay  time.Duration `env:"GOVERNOR_RETRY_INITIAL_DELAY" default:"100ms"`
	RetryMaxDelay      time.Duration `env:"GOVERNOR_RETRY_MAX_DELAY" default:"5s"`
	RetryBackoffFactor float64       `env:"GOVERNOR_RETRY_BACKOFF_FACTOR" default:"2.0"`
}

// LoggingConfig configures the telemetry logger.
type LoggingConfig struct {
	Level  string `env:"GOVERNOR_LOG_LEVEL" default:"info"`
	Format string `env:"GOVERNOR_LOG_FORMAT" default:"text"`
	Debug  bool   `env:"GOVERNOR_DEBUG" default:"false"`
}

// StoreConfig selects and configures the Event/Telemetry store backend.
type StoreConfig struct {
	Backend   string        `env:"GOVERNOR_STORE_BACKEND" default:"memory"` // memory|redis
	RedisURL  string        `env:"GOVERNOR_REDIS_URL,REDIS_URL"`
	Namespace string        `env:"GOVERNOR_STORE_NAMESPACE" default:"governor"`
	TTL       time.Duration `env:"GOVERNOR_STORE_TTL" default:"168h"`
}

// Option mutates a Config during construction. Options are applied after
// environment variables and therefore take precedence over them.
type Option func(*Config) error

// DefaultConfig returns a Config populated with the defaults documented on
// each field above.
func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			TickInterval:              100 * time.Millisecond,
			MaxConsecutiveSimFailures: 3,
			MaxReplans:                2,
			MaxSteps:                  3,
			MemoryWindow:              20,
			PromptMemoryWindow:        8,
			DenialThrottleWindow:      5,
			DenialThrottleCount:       3,
			ShutdownTimeout:           5 * time.Second,
		},
		Simulator: SimulatorConfig{
			BaseURL:      "http://localhost:9000",
			Timeout:      5 * time.Second,
			MaxIdleConns: 20,
		},
		Policy: PolicyConfig{
			GeofenceMinX: 0, GeofenceMaxX: 40,
			GeofenceMinY: 0, GeofenceMaxY: 25,
			ZoneSpeedLimits: map[string]float64{
				"aisle": 0.5, "corridor": 0.7, "loading_bay": 0.4,
			},
			MinObstacleClearanceM: 0.5,
			MinHumanConfidence:    0.65,
			MaxSpeedNearHuman:     0.4,
			HumanSlowRadiusM:      3.0,
			HumanStopRadiusM:      1.0,
			ReviewRiskThreshold:   0.75,
			MinSpeed:              0.1,
			MaxSpeed:              1.0,
		},
		AI: AIConfig{
			ProviderCascade: []string{"primary", "secondary"},
			Timeout:         10 * time.Second,
			Temperature:     0.3,
			MaxTokens:       800,
			APIKeyEnv:       map[string]string{},
			BaseURLEnv:      map[string]string{},
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled: true, Threshold: 5, Timeout: 30 * time.Second, HalfOpenRequests: 3,
			},
			RetryMaxAttempts:   3,
			RetryInitialDelay:  100 * time.Millisecond,
			RetryMaxDelay:      5 * time.Second,
			RetryBackoffFactor: 2.0,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Store:   StoreConfig{Backend: "memory", Namespace: "governor", TTL: 168 * time.Hour},
	}
}

// NewConfig assembles a Config: defaults, then environment variables, then
// functional options, exactly in that priority order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewNoOpLogger()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DetectEnvironment adjusts logging format for Kubernetes the way the
// teacher's telemetry logger auto-detects it.
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Logging.Format = "json"
	}
}

// loadFromEnv applies KUBERNETES_SERVICE_HOST (via DetectEnvironment),
// GOVERNOR_TICK_INTERVAL, GOVERNOR_MAX_SIM_FAILURES, GOVERNOR_SIM_BASE_URL,
// GOVERNOR_SIM_SHARED_SECRET, GOVERNOR_SIM_TIMEOUT, GOVERNOR_LOG_LEVEL,
// GOVERNOR_LOG_FORMAT, GOVERNOR_DEBUG, GOVERNOR_STORE_BACKEND and
// GOVERNOR_REDIS_URL (falling back to REDIS_URL). No other variable is read.
func (c *Config) loadFromEnv() error {
	c.DetectEnvironment()

	if v := os.Getenv("GOVERNOR_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GOVERNOR_TICK_INTERVAL: %w", err)
		}
		c.Runtime.TickInterval = d
	}
	if v := os.Getenv("GOVERNOR_MAX_SIM_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GOVERNOR_MAX_SIM_FAILURES: %w", err)
		}
		c.Runtime.MaxConsecutiveSimFailures = n
	}
	if v := os.Getenv("GOVERNOR_SIM_BASE_URL"); v != "" {
		c.Simulator.BaseURL = v
	}
	if v := os.Getenv("GOVERNOR_SIM_SHARED_SECRET"); v != "" {
		c.Simulator.SharedSecret = v
	}
	if v := os.Getenv("GOVERNOR_SIM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GOVERNOR_SIM_TIMEOUT: %w", err)
		}
		c.Simulator.Timeout = d
	}
	if v := os.Getenv("GOVERNOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GOVERNOR_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("GOVERNOR_DEBUG"); v != "" {
		c.Logging.Debug = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("GOVERNOR_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	redisURL := os.Getenv("GOVERNOR_REDIS_URL")
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if redisURL != "" {
		c.Store.RedisURL = redisURL
	}
	return nil
}

// Validate checks invariants that must hold regardless of how the Config
// was assembled.
func (c *Config) Validate() error {
	if c.Policy.MinSpeed <= 0 || c.Policy.MaxSpeed <= c.Policy.MinSpeed {
		return fmt.Errorf("%w: invalid speed bounds [%v,%v]", ErrValidationError, c.Policy.MinSpeed, c.Policy.MaxSpeed)
	}
	if c.Policy.GeofenceMaxX <= c.Policy.GeofenceMinX || c.Policy.GeofenceMaxY <= c.Policy.GeofenceMinY {
		return fmt.Errorf("%w: invalid geofence bounds", ErrValidationError)
	}
	if c.Runtime.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrValidationError)
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "redis" {
		return fmt.Errorf("%w: unknown store backend %q", ErrValidationError, c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.RedisURL == "" {
		return fmt.Errorf("%w: redis backend requires GOVERNOR_REDIS_URL", ErrValidationError)
	}
	return nil
}

// Logger returns the configured logger, defaulting to a no-op logger.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return NewNoOpLogger()
	}
	return c.logger
}

// WithLogger injects a custom logger.
func WithLogger(l Logger) Option {
	return func(c *Config) error {
		c.logger = l
		return nil
	}
}

// WithSimulatorBaseURL overrides the simulator base URL.
func WithSimulatorBaseURL(url string) Option {
	return func(c *Config) error {
		c.Simulator.BaseURL = url
		return nil
	}
}

// WithStoreBackend overrides the store backend ("memory" or "redis").
func WithStoreBackend(backend, redisURL string) Option {
	return func(c *Config) error {
		c.Store.Backend = backend
		c.Store.RedisURL = redisURL
		return nil
	}
}

// WithTickInterval overrides the controller tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.Runtime.TickInterval = d
		return nil
	}
}
