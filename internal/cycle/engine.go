// Package cycle implements the cycle engine (C6): one call to Run executes
// reconcile -> global risk gate -> per-symbol risk gate -> per-symbol data
// fetch -> per-strategy risk gate -> signal generation -> dedupe ->
// dispatch, in that order. The ordering is part of the contract (§4.5) and
// must not be reshuffled.
//
// Grounded on the original source's TradingBot.run_once, generalized from
// its single-symbol/single-strategy-set shape to the full
// symbols-x-strategies matrix in §4.5, and on the teacher's
// cmd/bot/trading_cycle.go for the ordered-phase dispatch idiom.
package cycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tradecore/enginecore/internal/domain"
	"github.com/tradecore/enginecore/internal/marketdata"
)

// closedTradeFetcher is the narrow broker slice the engine needs directly
// (beyond what it reaches through the executor and market-data service).
type closedTradeFetcher interface {
	GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error)
}

// riskGate is the narrow risk.Evaluator surface the engine depends on.
type riskGate interface {
	BotAllowed(trades []domain.TradeRecord) bool
	SymbolAllowed(symbol string, trades []domain.TradeRecord) bool
	StrategyAllowed(strategyName string, trades []domain.TradeRecord) bool
}

// positionMirror is the narrow executor.Executor surface the engine
// depends on.
type positionMirror interface {
	Sync(ctx context.Context) error
	Execute(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	HasOpenPosition(symbol string, strategyName string, magicNumber *int32) bool
}

// magicRegistry is the narrow registry.Registry surface the engine depends
// on.
type magicRegistry interface {
	Register(name string) int32
	MagicOf(name string) (int32, bool)
}

// dataService is the narrow marketdata.Service surface the engine depends
// on.
type dataService interface {
	Get(ctx context.Context, symbol domain.SymbolConfig, targets []domain.Timeframe, start, end time.Time) (map[domain.Timeframe]domain.BarSeries, error)
}

// Engine holds the wired dependencies and static configuration for one
// cycle engine instance. barCaps optionally overrides the per-timeframe
// bar-count caps used to size the historical query window (§4.5.1); nil
// uses marketdata's defaults.
type Engine struct {
	broker   closedTradeFetcher
	risk     riskGate
	executor positionMirror
	registry magicRegistry
	data     dataService
	logger   *log.Logger

	symbols    []domain.SymbolConfig
	strategies []domain.Strategy
	barCaps    map[domain.Timeframe]int

	history    []domain.TradeRecord
	historySet map[domain.DedupKey]struct{}
}

// Config bundles the engine's dependencies and static configuration.
type Config struct {
	Broker     closedTradeFetcher
	Risk       riskGate
	Executor   positionMirror
	Registry   magicRegistry
	Data       dataService
	Logger     *log.Logger
	Symbols    []domain.SymbolConfig
	Strategies []domain.Strategy
	// BarCaps overrides the per-max-timeframe bar-count cap table (§4.5.1).
	// Nil, or a partial map, falls back to marketdata's defaults for any
	// timeframe it doesn't cover.
	BarCaps map[domain.Timeframe]int
}

// New builds a cycle engine. Every strategy in cfg.Strategies is expected
// to already be registered (or will be lazily registered on first use) —
// engine construction doesn't register anything itself (§9: registration
// happens once, at engine construction, in the bootstrap layer).
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		broker:     cfg.Broker,
		risk:       cfg.Risk,
		executor:   cfg.Executor,
		registry:   cfg.Registry,
		data:       cfg.Data,
		logger:     logger,
		symbols:    cfg.Symbols,
		strategies: cfg.Strategies,
		barCaps:    cfg.BarCaps,
		historySet: make(map[domain.DedupKey]struct{}),
	}
}

// History returns a snapshot of accumulated trade history, for reporting.
func (e *Engine) History() []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(e.history))
	copy(out, e.history)
	return out
}

// RunOnce executes one full cycle as of now. It never panics on a
// per-symbol or per-strategy failure: those are logged and skipped, per
// §7's propagation policy. Only a context cancellation escapes.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) error {
	// Phase 1: reconcile.
	if err := e.executor.Sync(ctx); err != nil {
		e.logger.Printf("cycle: sync failed, continuing with existing mirror: %v", err)
	}
	e.updateTradeHistory(ctx)

	// Phase 2: global risk gate.
	if !e.risk.BotAllowed(e.history) {
		e.logger.Printf("cycle: bot blocked by global drawdown limit")
		return nil
	}

	// Phase 3: per symbol.
	for _, symbol := range e.symbols {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		e.runSymbol(ctx, now, symbol)
	}
	return nil
}

func (e *Engine) runSymbol(ctx context.Context, now time.Time, symbol domain.SymbolConfig) {
	if !e.risk.SymbolAllowed(symbol.Name, e.history) {
		e.logger.Printf("cycle: symbol %s blocked by drawdown limit", symbol.Name)
		return
	}

	eligible := e.eligibleStrategies(symbol.Name)
	required := e.requiredTimeframes(eligible, symbol.MinTimeframe)
	if len(required) == 0 {
		e.logger.Printf("cycle: symbol %s has no eligible timeframes, skipping", symbol.Name)
		return
	}

	window := marketdata.DataWindow(required, e.barCaps)
	dataMap, err := e.data.Get(ctx, symbol, required, now.Add(-window), now)
	if err != nil {
		e.logger.Printf("cycle: data fetch failed for %s: %v", symbol.Name, err)
		return
	}

	for _, strat := range eligible {
		e.runStrategy(ctx, symbol, strat, dataMap)
	}
}

// eligibleStrategies returns strategies with no allowed_symbols
// restriction, or whose restriction contains symbol.
func (e *Engine) eligibleStrategies(symbol string) []domain.Strategy {
	out := make([]domain.Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		if domain.EligibleForSymbol(s, symbol) {
			out = append(out, s)
		}
	}
	return out
}

// requiredTimeframes is the union of timeframes needed by eligible
// strategies, with anything finer than base dropped (§4.5.3c).
func (e *Engine) requiredTimeframes(strategies []domain.Strategy, base domain.Timeframe) []domain.Timeframe {
	seen := make(map[domain.Timeframe]struct{})
	var out []domain.Timeframe
	for _, s := range strategies {
		for _, tf := range s.Timeframes() {
			if _, ok := seen[tf]; ok {
				continue
			}
			if finer, err := tf.Finer(base); err == nil && finer {
				continue
			}
			seen[tf] = struct{}{}
			out = append(out, tf)
		}
	}
	return out
}

func (e *Engine) runStrategy(ctx context.Context, symbol domain.SymbolConfig, strat domain.Strategy, dataMap map[domain.Timeframe]domain.BarSeries) {
	name := strat.Name()
	if !e.risk.StrategyAllowed(name, e.history) {
		e.logger.Printf("cycle: strategy %s blocked by drawdown limit", name)
		return
	}

	signals := strat.GenerateSignals(dataMap)

	magic, ok := e.registry.MagicOf(name)
	if !ok {
		magic = e.registry.Register(name)
		e.logger.Printf("cycle: strategy %s registered lazily with magic %d", name, magic)
	}

	for _, sig := range signals {
		e.dispatchSignal(ctx, symbol, strat, sig, magic)
	}
}

func (e *Engine) dispatchSignal(ctx context.Context, symbol domain.SymbolConfig, strat domain.Strategy, sig domain.Signal, magic int32) {
	name := strat.Name()
	m := magic

	switch sig.Kind {
	case domain.SignalBuy, domain.SignalSell:
		if e.executor.HasOpenPosition(sig.Symbol, name, &m) {
			e.logger.Printf("cycle: %s signal for %s/%s ignored, position already open", sig.Kind, sig.Symbol, name)
			return
		}
		req := domain.OrderRequest{
			Symbol:      sig.Symbol,
			Volume:      sig.Size,
			Kind:        domain.OrderKind(sig.Kind),
			StopLoss:    sig.StopLoss,
			TakeProfit:  sig.TakeProfit,
			Comment:     fmt.Sprintf("%s-%s", name, sig.Timeframe),
			MagicNumber: &m,
		}
		e.dispatch(ctx, req)
	case domain.SignalClose:
		if !e.executor.HasOpenPosition(sig.Symbol, name, &m) {
			e.logger.Printf("cycle: CLOSE signal for %s/%s ignored, no open position", sig.Symbol, name)
			return
		}
		req := domain.OrderRequest{
			Symbol:      sig.Symbol,
			Volume:      sig.Size,
			Kind:        domain.OrderClose,
			Comment:     fmt.Sprintf("%s-%s", name, sig.Timeframe),
			MagicNumber: &m,
		}
		e.dispatch(ctx, req)
	default:
		// HOLD or unknown: ignore.
	}
}

func (e *Engine) dispatch(ctx context.Context, req domain.OrderRequest) {
	result, err := e.executor.Execute(ctx, req)
	if err != nil {
		e.logger.Printf("cycle: dispatch failed for %s %s: %v", req.Kind, req.Symbol, err)
		return
	}
	if !result.Success {
		e.logger.Printf("cycle: order rejected for %s %s: %s", req.Kind, req.Symbol, result.ErrorMessage)
		return
	}
	e.logger.Printf("cycle: order accepted for %s %s: id=%s", req.Kind, req.Symbol, result.OrderID)
}

// updateTradeHistory pulls closed trades from the broker and appends any
// whose dedup key isn't already present. A broker that doesn't support
// closed-trade retrieval (ErrUnsupportedOperation) leaves history
// unchanged, not an error.
func (e *Engine) updateTradeHistory(ctx context.Context) {
	closed, err := e.broker.GetClosedTrades(ctx)
	if err != nil {
		if isUnsupported(err) {
			e.logger.Printf("cycle: broker does not support closed-trade retrieval, history unchanged")
			return
		}
		e.logger.Printf("cycle: error updating trade history: %v", err)
		return
	}

	for _, t := range closed {
		key := t.Key()
		if _, exists := e.historySet[key]; exists {
			continue
		}
		e.historySet[key] = struct{}{}
		e.history = append(e.history, t)
	}
}

func isUnsupported(err error) bool {
	for err != nil {
		if err == domain.ErrUnsupportedOperation {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
