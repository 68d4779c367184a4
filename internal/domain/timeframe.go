// Package domain holds the value types shared by every subsystem of the
// engine: symbols, bars, signals, orders, positions, trade history and risk
// limits. Nothing in this package talks to a broker or the filesystem.
package domain

import "fmt"

// Timeframe is one of the closed set of bar resolutions the engine
// understands. The zero value is not a valid timeframe.
type Timeframe string

// The closed set of timeframes, ordered by minute count.
const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// timeframeMinutes maps every known timeframe to its width in minutes.
var timeframeMinutes = map[Timeframe]int{
	M1:  1,
	M5:  5,
	M15: 15,
	M30: 30,
	H1:  60,
	H4:  240,
	D1:  1440,
}

// orderedTimeframes lists the closed set in ascending minute-count order.
var orderedTimeframes = []Timeframe{M1, M5, M15, M30, H1, H4, D1}

// KnownTimeframes returns the closed set of timeframes the engine
// understands, ordered from finest to coarsest.
func KnownTimeframes() []Timeframe {
	out := make([]Timeframe, len(orderedTimeframes))
	copy(out, orderedTimeframes)
	return out
}

// Minutes returns the timeframe's width in minutes and whether it is a
// recognized timeframe at all.
func (t Timeframe) Minutes() (int, bool) {
	m, ok := timeframeMinutes[t]
	return m, ok
}

// Valid reports whether t belongs to the closed timeframe set.
func (t Timeframe) Valid() bool {
	_, ok := timeframeMinutes[t]
	return ok
}

// Finer reports whether t is a strictly finer resolution than other (i.e.
// t's minute count is smaller). Both timeframes must be valid.
func (t Timeframe) Finer(other Timeframe) (bool, error) {
	tm, ok := t.Minutes()
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, t)
	}
	om, ok := other.Minutes()
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, other)
	}
	return tm < om, nil
}
