package domain

import "fmt"

// RiskLimits bounds how much equity-curve drawdown is tolerated at each of
// three scopes. All drawdown fields are percentages in [0,100];
// InitialBalance must be > 0.
type RiskLimits struct {
	DDGlobal       *float64
	DDPerSymbol    map[string]float64
	DDPerStrategy  map[string]float64
	InitialBalance float64
}

// Validate checks the structural invariants ConfigError cares about:
// non-positive initial balance or a negative/out-of-range drawdown limit.
func (r RiskLimits) Validate() error {
	if r.InitialBalance <= 0 {
		return fmt.Errorf("%w: risk_limits.initial_balance must be > 0", ErrConfig)
	}
	if r.DDGlobal != nil && (*r.DDGlobal < 0 || *r.DDGlobal > 100) {
		return fmt.Errorf("%w: risk_limits.dd_global must be in [0,100]", ErrConfig)
	}
	for sym, pct := range r.DDPerSymbol {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: risk_limits.dd_per_symbol[%q] must be in [0,100]", ErrConfig, sym)
		}
	}
	for strat, pct := range r.DDPerStrategy {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: risk_limits.dd_per_strategy[%q] must be in [0,100]", ErrConfig, strat)
		}
	}
	return nil
}
