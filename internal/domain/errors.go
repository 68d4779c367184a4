package domain

import "errors"

// Error taxonomy for the core. These are sentinels meant to be wrapped with
// fmt.Errorf("...: %w", ErrX) and inspected with errors.Is at the call site.
//
// ConfigError and DataError are fatal/per-symbol respectively; OrderRejected
// is carried in an OrderResult, never raised; TransportError and
// UnsupportedOperation are recoverable at the cycle boundary; Cancelled is
// the only error that is allowed to escape a loop driver.
var (
	// ErrConfig marks a fatal configuration problem: unknown timeframe,
	// non-positive initial balance, negative drawdown limit, empty
	// strategy/symbol lists.
	ErrConfig = errors.New("config error")

	// ErrUnsupportedTimeframe is a specific ConfigError/DataError raised
	// when a timeframe falls outside the closed set the engine knows.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

	// ErrData marks a per-symbol, non-fatal data problem: no data, data
	// returned out of alignment, or a refused historical query.
	ErrData = errors.New("data error")

	// ErrTransport marks an exceptional broker transport failure during
	// send or sync. Non-fatal at the cycle level.
	ErrTransport = errors.New("transport error")

	// ErrUnsupportedOperation marks a broker declaring it cannot
	// implement an optional endpoint (e.g. closed-trade history). The
	// caller treats this as "no new information", not a failure.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrCancelled marks an external interrupt. Terminal for loop
	// drivers; never swallowed.
	ErrCancelled = errors.New("cancelled")
)
