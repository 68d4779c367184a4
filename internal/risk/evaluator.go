// Package risk implements the layered drawdown gate: bot-wide, per-symbol,
// and per-strategy, evaluated statelessly over trade history.
//
// Grounded on the original source's RiskManager, with its drawdown formula
// replaced per §4.2/§9: equity-curve percentage-of-peak, not the
// superseded sum-of-losses variant.
package risk

import (
	"github.com/tradecore/enginecore/internal/domain"
)

// Evaluator gates new order dispatch against configured drawdown limits.
// It never mutates its inputs and never raises; a gate failure is reported
// as a boolean the caller uses to skip work.
type Evaluator struct {
	limits domain.RiskLimits
}

// New builds an Evaluator from limits. Caller is responsible for having
// validated limits (see domain.RiskLimits.Validate) at config load time.
func New(limits domain.RiskLimits) *Evaluator {
	return &Evaluator{limits: limits}
}

// Drawdown computes the equity-curve max drawdown, as a percentage of the
// peak, over trades in the order given. An empty trade list yields 0.
func Drawdown(initialBalance float64, trades []domain.TradeRecord) float64 {
	equity := initialBalance
	peak := initialBalance
	maxDD := 0.0

	for _, trade := range trades {
		equity += trade.PnL
		if equity > peak {
			peak = equity
		}
		ddPct := (peak - equity) / peak * 100
		if ddPct > maxDD {
			maxDD = ddPct
		}
	}
	return maxDD
}

// BotAllowed reports whether the bot may open new orders at all: true if
// no global limit is configured, or the drawdown over the full history is
// within it.
func (e *Evaluator) BotAllowed(trades []domain.TradeRecord) bool {
	if e.limits.DDGlobal == nil {
		return true
	}
	return Drawdown(e.limits.InitialBalance, trades) <= *e.limits.DDGlobal
}

// SymbolAllowed reports whether symbol may be traded: true if no limit is
// configured for it, or the drawdown over trades restricted to that symbol
// is within the configured limit.
func (e *Evaluator) SymbolAllowed(symbol string, trades []domain.TradeRecord) bool {
	limit, ok := e.limits.DDPerSymbol[symbol]
	if !ok {
		return true
	}
	filtered := filterBySymbol(trades, symbol)
	return Drawdown(e.limits.InitialBalance, filtered) <= limit
}

// StrategyAllowed is SymbolAllowed's symmetric counterpart, filtered by
// strategy name.
func (e *Evaluator) StrategyAllowed(strategyName string, trades []domain.TradeRecord) bool {
	limit, ok := e.limits.DDPerStrategy[strategyName]
	if !ok {
		return true
	}
	filtered := filterByStrategy(trades, strategyName)
	return Drawdown(e.limits.InitialBalance, filtered) <= limit
}

func filterBySymbol(trades []domain.TradeRecord, symbol string) []domain.TradeRecord {
	out := make([]domain.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

func filterByStrategy(trades []domain.TradeRecord, strategyName string) []domain.TradeRecord {
	out := make([]domain.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if t.StrategyName == strategyName {
			out = append(out, t)
		}
	}
	return out
}
