// Package smacross is a reference implementation of the domain.Strategy
// contract: a simple moving-average crossover. It is not part of the
// core — per §1, the example strategy is a boundary-contract reference,
// grounded in shape (not substance) on the teacher's
// internal/strategy/strangle.go (name/timeframes/allowed-symbols/signal
// generation).
package smacross

import (
	"github.com/tradecore/enginecore/internal/domain"
)

// Config parameterizes the crossover.
type Config struct {
	// FastPeriod and SlowPeriod are SMA lookback windows, in bars of
	// Timeframe.
	FastPeriod int
	SlowPeriod int
	// Timeframe is the single timeframe this strategy trades on.
	Timeframe domain.Timeframe
	// Size is the order volume emitted with every signal.
	Size float64
	// AllowedSymbols optionally restricts eligible symbols; nil means
	// all configured symbols are eligible.
	AllowedSymbols []string
}

// Strategy implements domain.Strategy with an SMA(fast)/SMA(slow)
// crossover: BUY when fast crosses above slow, CLOSE when it crosses back
// below. Holds one bit of state per symbol (the previous bar's sign of
// fast-minus-slow) so it can detect a crossover rather than just a level.
type Strategy struct {
	name   string
	config Config

	lastSign map[string]int // symbol -> sign(fast-slow) as of the previous call
}

// New builds a named SMA-crossover strategy instance. Multiple instances
// with different names/params/symbols can run side by side; each gets its
// own magic number from the registry.
func New(name string, config Config) *Strategy {
	return &Strategy{
		name:     name,
		config:   config,
		lastSign: make(map[string]int),
	}
}

func (s *Strategy) Name() string { return s.name }

func (s *Strategy) Timeframes() []domain.Timeframe {
	return []domain.Timeframe{s.config.Timeframe}
}

func (s *Strategy) AllowedSymbols() []string {
	return s.config.AllowedSymbols
}

// GenerateSignals computes both SMAs over the configured timeframe's
// series and emits BUY/CLOSE on a crossover, HOLD otherwise. The signal's
// symbol is read off the series itself. On the first call for a symbol the
// previous sign is taken from the same series one bar back; if the series
// holds no more than SlowPeriod bars, that first call emits nothing.
func (s *Strategy) GenerateSignals(data map[domain.Timeframe]domain.BarSeries) []domain.Signal {
	series, ok := data[s.config.Timeframe]
	if !ok || len(series.Bars) < s.config.SlowPeriod {
		return nil
	}

	fast := sma(series.Bars, s.config.FastPeriod)
	slow := sma(series.Bars, s.config.SlowPeriod)
	if fast == 0 && slow == 0 {
		return nil
	}

	sign := 1
	if fast < slow {
		sign = -1
	}

	prev, known := s.lastSign[series.Symbol]
	s.lastSign[series.Symbol] = sign
	if !known {
		// First observation: compare against the sign one bar back.
		if len(series.Bars) <= s.config.SlowPeriod {
			return nil // not enough bars for a previous sign
		}
		prior := series.Bars[:len(series.Bars)-1]
		prev = 1
		if sma(prior, s.config.FastPeriod) < sma(prior, s.config.SlowPeriod) {
			prev = -1
		}
	}
	if prev == sign {
		return []domain.Signal{{
			Symbol: series.Symbol, StrategyName: s.name, Timeframe: s.config.Timeframe, Kind: domain.SignalHold,
		}}
	}

	kind := domain.SignalClose
	if sign > 0 {
		kind = domain.SignalBuy
	}
	return []domain.Signal{{
		Symbol:       series.Symbol,
		StrategyName: s.name,
		Timeframe:    s.config.Timeframe,
		Kind:         kind,
		Size:         s.config.Size,
	}}
}

// sma returns the simple moving average of the last period closes in bars.
// Returns 0 if bars is shorter than period.
func sma(bars []domain.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	window := bars[len(bars)-period:]
	var sum float64
	for _, b := range window {
		sum += b.Close
	}
	return sum / float64(period)
}
