// Package main is the engine's daemon entry point: load config, build the
// broker transport chain, wire the cycle engine, and run the configured loop
// driver until interrupted.
//
// Grounded on the teacher's cmd/bot/main.go: flag-parsed config path,
// stdlib *log.Logger for the hot path plus a logrus dashLogger for
// process-level/operational output, SIGINT/SIGTERM-driven graceful
// shutdown, and retry/circuit-breaker decorators wrapped around the broker
// transport before anything else touches it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tradecore/enginecore/internal/broker"
	"github.com/tradecore/enginecore/internal/broker/fakebroker"
	"github.com/tradecore/enginecore/internal/broker/refbroker"
	"github.com/tradecore/enginecore/internal/config"
	"github.com/tradecore/enginecore/internal/cycle"
	"github.com/tradecore/enginecore/internal/domain"
	"github.com/tradecore/enginecore/internal/executor"
	"github.com/tradecore/enginecore/internal/loop"
	"github.com/tradecore/enginecore/internal/marketdata"
	"github.com/tradecore/enginecore/internal/registry"
	"github.com/tradecore/enginecore/internal/retry"
	"github.com/tradecore/enginecore/internal/risk"
	"github.com/tradecore/enginecore/internal/storage"
	"github.com/tradecore/enginecore/internal/strategy/smacross"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags)
	dashLogger := newDashLogger(cfg)

	logger.Printf("starting engine in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		dashLogger.Info("paper trading mode: no real money at risk")
	} else {
		dashLogger.Warn("live trading mode: real money at risk")
	}

	transport := buildTransport(cfg, logger)

	symbols, strategies, err := buildDomainConfig(cfg)
	if err != nil {
		logger.Printf("invalid strategy/symbol wiring: %v", err)
		return 1
	}

	exec := executor.New(transport, logger)
	reg := registry.New()
	for _, s := range strategies {
		reg.Register(s.Name())
	}

	riskLimits := domain.RiskLimits{
		DDGlobal:       cfg.RiskLimits.DDGlobal,
		DDPerSymbol:    cfg.RiskLimits.DDPerSymbol,
		DDPerStrategy:  cfg.RiskLimits.DDPerStrategy,
		InitialBalance: cfg.RiskLimits.InitialBalance,
	}
	riskEval := risk.New(riskLimits)
	data := marketdata.New(transport)

	engine := cycle.New(cycle.Config{
		Broker:     transport,
		Risk:       riskEval,
		Executor:   exec,
		Registry:   reg,
		Data:       data,
		Logger:     logger,
		Symbols:    symbols,
		Strategies: strategies,
		BarCaps:    barCaps(cfg),
	})

	var audit *storage.TradeAuditStore
	if cfg.Storage.AuditDBPath != "" {
		audit, err = storage.Open(cfg.Storage.AuditDBPath)
		if err != nil {
			logger.Printf("failed to open trade audit database: %v", err)
			return 1
		}
		defer func() { _ = audit.Close() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping engine")
		cancel()
	}()

	if err := transport.Connect(ctx); err != nil {
		logger.Printf("warning: initial broker connect failed, continuing: %v", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return runLoop(groupCtx, cfg, engine, logger)
	})

	if audit != nil {
		group.Go(func() error {
			return pollAndAudit(groupCtx, engine, audit, logger)
		})
	}

	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		logger.Printf("engine stopped with error: %v", err)
		return 1
	}

	logger.Println("engine stopped cleanly")
	return 0
}

// runLoop dispatches to the loop driver §4.6's schedule config selects.
func runLoop(ctx context.Context, cfg *config.Config, engine *cycle.Engine, logger *log.Logger) error {
	if cfg.IsFixedInterval() {
		return loop.RunFixedInterval(ctx, engine, time.Duration(cfg.Schedule.SleepSeconds)*time.Second, loop.RealClock, logger)
	}
	waitAfterClose := time.Duration(cfg.Schedule.WaitAfterCloseSeconds) * time.Second
	return loop.RunCandleAligned(ctx, engine, cfg.Schedule.TimeframeMinutes, waitAfterClose, loop.RealClock, logger)
}

// pollAndAudit periodically appends the engine's accumulated trade history
// into the audit store, independent of the cycle cadence, mirroring the
// teacher's background-goroutine-plus-stop-channel shape but bound by an
// errgroup instead of a bare channel close.
func pollAndAudit(ctx context.Context, engine *cycle.Engine, audit *storage.TradeAuditStore, logger *log.Logger) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := audit.RecordAll(ctx, engine.History()); err != nil {
				logger.Printf("audit: failed to persist trade history: %v", err)
			}
		}
	}
}

// buildTransport wires the broker chain: fakebroker or refbroker at the
// base, then retry, then circuit breaker, mirroring the teacher's
// broker.NewCircuitBreakerBroker(tradierClient) wrapping (with an added
// retry layer the teacher's go.mod declares but never wires).
func buildTransport(cfg *config.Config, logger *log.Logger) broker.Broker {
	var base broker.Broker
	if cfg.Broker.UseRealBroker {
		base = refbroker.New(cfg.Broker.BaseURL, cfg.Broker.APIKey, refbroker.RateLimits{
			MarketData: rate.Limit(rateOrDefault(cfg.Broker.RateLimits.MarketData, float64(refbroker.DefaultRateLimits.MarketData))),
			Trading:    rate.Limit(rateOrDefault(cfg.Broker.RateLimits.Trading, float64(refbroker.DefaultRateLimits.Trading))),
			Standard:   rate.Limit(rateOrDefault(cfg.Broker.RateLimits.Standard, float64(refbroker.DefaultRateLimits.Standard))),
		})
	} else {
		base = fakebroker.New()
	}

	retrying := retry.NewClient(base, logger, retry.Config{
		MaxRetries:     cfg.Broker.Retry.MaxRetries,
		InitialBackoff: cfg.Broker.Retry.InitialBackoff,
		MaxBackoff:     cfg.Broker.Retry.MaxBackoff,
		Timeout:        cfg.Broker.Retry.Timeout,
	})

	return broker.NewCircuitBreakerBroker("engine-broker", retrying, broker.CircuitBreakerConfig{
		MaxRequests:      uint32(cfg.Broker.CircuitBreaker.MaxRequests),
		Interval:         cfg.Broker.CircuitBreaker.Interval,
		Timeout:          cfg.Broker.CircuitBreaker.Timeout,
		FailureThreshold: uint32(cfg.Broker.CircuitBreaker.FailureThreshold),
	})
}

func rateOrDefault(configured, def float64) float64 {
	if configured <= 0 {
		return def
	}
	return configured
}

// buildDomainConfig translates the YAML config surface into the plain
// domain values the core consumes, and constructs the configured strategy
// instances (§1: strategy implementations are an external collaborator;
// only "kind" is known here).
func buildDomainConfig(cfg *config.Config) ([]domain.SymbolConfig, []domain.Strategy, error) {
	symbols := make([]domain.SymbolConfig, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, domain.SymbolConfig{
			Name:         s.Name,
			MinTimeframe: domain.Timeframe(s.MinTimeframe),
			LotSize:      s.LotSize,
		})
	}

	strategies := make([]domain.Strategy, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		switch s.Kind {
		case "smacross", "":
			strategies = append(strategies, smacross.New(s.Name, smacross.Config{
				FastPeriod:     s.FastPeriod,
				SlowPeriod:     s.SlowPeriod,
				Timeframe:      domain.Timeframe(s.Timeframe),
				Size:           s.Size,
				AllowedSymbols: s.AllowedSymbols,
			}))
		default:
			return nil, nil, fmt.Errorf("strategy %q: unknown kind %q", s.Name, s.Kind)
		}
	}
	return symbols, strategies, nil
}

// barCaps translates the YAML schedule.bar_caps override (§4.5.1) into the
// domain-keyed map cycle.Config expects. Returns nil when unset, so the
// engine falls back to its built-in cap table.
func barCaps(cfg *config.Config) map[domain.Timeframe]int {
	if len(cfg.Schedule.BarCaps) == 0 {
		return nil
	}
	caps := make(map[domain.Timeframe]int, len(cfg.Schedule.BarCaps))
	for tf, n := range cfg.Schedule.BarCaps {
		caps[domain.Timeframe(tf)] = n
	}
	return caps
}

// newDashLogger builds the process-level logrus logger, mirroring the
// teacher's dashLogger: JSON output in live mode, human-readable text in
// paper mode, level parsed from config.
func newDashLogger(cfg *config.Config) *logrus.Logger {
	dashLogger := logrus.New()
	dashLogger.SetOutput(os.Stdout)
	if cfg.Environment.Mode == "live" {
		dashLogger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		dashLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		dashLogger.SetLevel(lvl)
	} else {
		dashLogger.SetLevel(logrus.InfoLevel)
	}
	return dashLogger
}
