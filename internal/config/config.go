// Package config loads and validates the YAML configuration surface the
// engine's bootstrap layer consumes: symbols, strategy wiring points, risk
// limits, loop choice, and broker/resilience settings. The core itself
// never reads a config file — only cmd/bot and cmd/report do, handing the
// core plain Go values.
//
// Grounded on the teacher's internal/config/config.go: YAML via
// gopkg.in/yaml.v3 with Decoder.KnownFields(true), env-var expansion via
// os.ExpandEnv, and the same Load -> Normalize -> Validate pipeline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults mirrored from the teacher's risk/schedule constant block,
// repurposed for this domain's config surface.
const (
	defaultLogLevel             = "info"
	defaultScheduleMode          = "candle_aligned"
	defaultSleepSeconds          = 60
	defaultTimeframeMinutes      = 5
	defaultWaitAfterCloseSeconds = 5
	defaultCircuitMaxRequests    = 1
	defaultCircuitInterval       = time.Minute
	defaultCircuitTimeout        = 30 * time.Second
	defaultCircuitFailureThresh  = 5
	defaultRetryMaxRetries       = 3
	defaultRetryInitialBackoff   = time.Second
	defaultRetryMaxBackoff       = 30 * time.Second
	defaultRetryTimeout          = 2 * time.Minute
)

// Config is the complete application configuration: the core's §6
// Configuration surface plus the ambient broker/resilience/storage
// settings the bootstrap layer needs that the core itself stays agnostic
// of.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Symbols     []SymbolConfig    `yaml:"symbols"`
	Strategies  []StrategyConfig  `yaml:"strategies"`
	RiskLimits  RiskLimitsConfig  `yaml:"risk_limits"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig selects the run mode and log verbosity.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig selects and tunes the brokerage transport. UseRealBroker is
// consumed outside the core by the bootstrap (§6): false wires the
// in-memory fakebroker, true wires refbroker.Client wrapped in retry and
// circuit-breaker decorators.
type BrokerConfig struct {
	UseRealBroker  bool                 `yaml:"use_real_broker"`
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	RateLimits     RateLimitsConfig     `yaml:"rate_limits"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// RateLimitsConfig bounds requests/second per endpoint category on the
// reference REST broker.
type RateLimitsConfig struct {
	MarketData float64 `yaml:"market_data"`
	Trading    float64 `yaml:"trading"`
	Standard   float64 `yaml:"standard"`
}

// CircuitBreakerConfig tunes the gobreaker-backed decorator wrapping the
// broker transport.
type CircuitBreakerConfig struct {
	MaxRequests      int           `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// RetryConfig tunes the exponential-backoff-with-jitter decorator wrapping
// the broker transport.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SymbolConfig is the YAML shape of domain.SymbolConfig (§3).
type SymbolConfig struct {
	Name         string  `yaml:"name"`
	MinTimeframe string  `yaml:"min_timeframe"`
	LotSize      float64 `yaml:"lot_size"`
}

// StrategyConfig names and parameterizes one strategy instance. Kind
// selects the constructor the bootstrap layer uses (e.g. "smacross");
// the core consumes the resulting domain.Strategy value, never this
// struct directly (§1: individual strategy implementations are an
// external collaborator, only the contract is core).
type StrategyConfig struct {
	Name           string   `yaml:"name"`
	Kind           string   `yaml:"kind"`
	Timeframe      string   `yaml:"timeframe"`
	FastPeriod     int      `yaml:"fast_period"`
	SlowPeriod     int      `yaml:"slow_period"`
	Size           float64  `yaml:"size"`
	AllowedSymbols []string `yaml:"allowed_symbols"`
}

// RiskLimitsConfig is the YAML shape of domain.RiskLimits (§3).
type RiskLimitsConfig struct {
	InitialBalance float64            `yaml:"initial_balance"`
	DDGlobal       *float64           `yaml:"dd_global"`
	DDPerSymbol    map[string]float64 `yaml:"dd_per_symbol"`
	DDPerStrategy  map[string]float64 `yaml:"dd_per_strategy"`
}

// ScheduleConfig selects the loop driver (§4.6) and its parameters.
type ScheduleConfig struct {
	Mode                  string         `yaml:"mode"` // fixed_interval | candle_aligned
	SleepSeconds          int            `yaml:"sleep_seconds"`
	TimeframeMinutes      int            `yaml:"timeframe_minutes"`
	WaitAfterCloseSeconds int            `yaml:"wait_after_close_seconds"`
	BarCaps               map[string]int `yaml:"bar_caps"` // per-max-timeframe cap override (§4.5.1)
}

// StorageConfig points at the optional sqlite trade-audit database (§5's
// supplemented persistence feature). Empty disables the audit store.
type StorageConfig struct {
	AuditDBPath string `yaml:"audit_db_path"`
}

const (
	modeFixedInterval = "fixed_interval"
	modeCandleAligned = "candle_aligned"
)

// Load reads, expands, decodes, normalizes, and validates the config file
// at path. Unknown YAML fields are rejected (teacher's
// Decoder.KnownFields(true)) so a typo in a config key fails loudly
// instead of silently falling back to a zero value.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Normalize fills in defaults the way the teacher's Config.Normalize does:
// only for fields left at their zero value.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = defaultLogLevel
	}
	if strings.TrimSpace(c.Schedule.Mode) == "" {
		c.Schedule.Mode = defaultScheduleMode
	}
	if c.Schedule.SleepSeconds == 0 {
		c.Schedule.SleepSeconds = defaultSleepSeconds
	}
	if c.Schedule.TimeframeMinutes == 0 {
		c.Schedule.TimeframeMinutes = defaultTimeframeMinutes
	}
	if c.Schedule.WaitAfterCloseSeconds == 0 {
		c.Schedule.WaitAfterCloseSeconds = defaultWaitAfterCloseSeconds
	}
	if c.Broker.CircuitBreaker.MaxRequests == 0 {
		c.Broker.CircuitBreaker.MaxRequests = defaultCircuitMaxRequests
	}
	if c.Broker.CircuitBreaker.Interval == 0 {
		c.Broker.CircuitBreaker.Interval = defaultCircuitInterval
	}
	if c.Broker.CircuitBreaker.Timeout == 0 {
		c.Broker.CircuitBreaker.Timeout = defaultCircuitTimeout
	}
	if c.Broker.CircuitBreaker.FailureThreshold == 0 {
		c.Broker.CircuitBreaker.FailureThreshold = defaultCircuitFailureThresh
	}
	if c.Broker.Retry.MaxRetries == 0 {
		c.Broker.Retry.MaxRetries = defaultRetryMaxRetries
	}
	if c.Broker.Retry.InitialBackoff == 0 {
		c.Broker.Retry.InitialBackoff = defaultRetryInitialBackoff
	}
	if c.Broker.Retry.MaxBackoff == 0 {
		c.Broker.Retry.MaxBackoff = defaultRetryMaxBackoff
	}
	if c.Broker.Retry.Timeout == 0 {
		c.Broker.Retry.Timeout = defaultRetryTimeout
	}
	for i := range c.Strategies {
		if c.Strategies[i].Kind == "" {
			c.Strategies[i].Kind = "smacross"
		}
	}
}

// knownTimeframes mirrors domain.KnownTimeframes without importing
// internal/domain, keeping this package's only dependency on the engine's
// value types implicit rather than cyclic (config is loaded before any
// domain object exists).
var knownTimeframes = map[string]struct{}{
	"M1": {}, "M5": {}, "M15": {}, "M30": {}, "H1": {}, "H4": {}, "D1": {},
}

// Validate checks every ConfigError-flavored invariant from spec.md §7:
// unknown timeframe, non-positive initial balance, negative drawdown
// limit, empty strategy/symbol lists.
func (c *Config) Validate() error {
	switch c.Environment.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if c.Broker.UseRealBroker {
		if strings.TrimSpace(c.Broker.BaseURL) == "" {
			return fmt.Errorf("broker.base_url is required when use_real_broker is true")
		}
		if strings.TrimSpace(c.Broker.APIKey) == "" {
			return fmt.Errorf("broker.api_key is required when use_real_broker is true")
		}
	}
	if c.Broker.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("broker.circuit_breaker.failure_threshold must be > 0")
	}
	if c.Broker.Retry.MaxRetries < 0 {
		return fmt.Errorf("broker.retry.max_retries must be >= 0")
	}
	if c.Broker.Retry.MaxBackoff < c.Broker.Retry.InitialBackoff {
		return fmt.Errorf("broker.retry.max_backoff must be >= initial_backoff")
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must not be empty")
	}
	seenSymbols := make(map[string]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("symbols[].name is required")
		}
		if _, dup := seenSymbols[s.Name]; dup {
			return fmt.Errorf("duplicate symbol %q", s.Name)
		}
		seenSymbols[s.Name] = struct{}{}
		if _, ok := knownTimeframes[s.MinTimeframe]; !ok {
			return fmt.Errorf("symbols[%s].min_timeframe %q is not a recognized timeframe", s.Name, s.MinTimeframe)
		}
		if s.LotSize <= 0 {
			return fmt.Errorf("symbols[%s].lot_size must be > 0", s.Name)
		}
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("strategies must not be empty")
	}
	seenStrategies := make(map[string]struct{}, len(c.Strategies))
	for _, s := range c.Strategies {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("strategies[].name is required")
		}
		if _, dup := seenStrategies[s.Name]; dup {
			return fmt.Errorf("duplicate strategy %q", s.Name)
		}
		seenStrategies[s.Name] = struct{}{}
		if _, ok := knownTimeframes[s.Timeframe]; !ok {
			return fmt.Errorf("strategies[%s].timeframe %q is not a recognized timeframe", s.Name, s.Timeframe)
		}
		if s.SlowPeriod <= 0 || s.FastPeriod <= 0 {
			return fmt.Errorf("strategies[%s].fast_period/slow_period must be > 0", s.Name)
		}
		if s.FastPeriod >= s.SlowPeriod {
			return fmt.Errorf("strategies[%s].fast_period must be < slow_period", s.Name)
		}
		if s.Size <= 0 {
			return fmt.Errorf("strategies[%s].size must be > 0", s.Name)
		}
	}

	if c.RiskLimits.InitialBalance <= 0 {
		return fmt.Errorf("risk_limits.initial_balance must be > 0")
	}
	if c.RiskLimits.DDGlobal != nil && (*c.RiskLimits.DDGlobal < 0 || *c.RiskLimits.DDGlobal > 100) {
		return fmt.Errorf("risk_limits.dd_global must be in [0,100]")
	}
	for sym, pct := range c.RiskLimits.DDPerSymbol {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("risk_limits.dd_per_symbol[%s] must be in [0,100]", sym)
		}
	}
	for strat, pct := range c.RiskLimits.DDPerStrategy {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("risk_limits.dd_per_strategy[%s] must be in [0,100]", strat)
		}
	}

	switch c.Schedule.Mode {
	case modeFixedInterval:
		if c.Schedule.SleepSeconds <= 0 {
			return fmt.Errorf("schedule.sleep_seconds must be > 0 for fixed_interval mode")
		}
	case modeCandleAligned:
		if c.Schedule.TimeframeMinutes <= 0 {
			return fmt.Errorf("schedule.timeframe_minutes must be > 0 for candle_aligned mode")
		}
		if c.Schedule.WaitAfterCloseSeconds < 0 {
			return fmt.Errorf("schedule.wait_after_close_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("schedule.mode must be 'fixed_interval' or 'candle_aligned'")
	}
	for tf, limit := range c.Schedule.BarCaps {
		if _, ok := knownTimeframes[tf]; !ok {
			return fmt.Errorf("schedule.bar_caps[%s] is not a recognized timeframe", tf)
		}
		if limit <= 0 {
			return fmt.Errorf("schedule.bar_caps[%s] must be > 0", tf)
		}
	}

	return nil
}

// IsPaperTrading reports whether the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// IsFixedInterval reports whether the fixed-interval loop driver (as
// opposed to candle-aligned) was selected.
func (c *Config) IsFixedInterval() bool {
	return c.Schedule.Mode == modeFixedInterval
}
