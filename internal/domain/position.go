package domain

import (
	"strconv"
	"time"
)

// Position is a currently-open broker position as mirrored locally by the
// order executor.
type Position struct {
	Symbol       string
	Volume       float64
	EntryPrice   float64
	StopLoss     *float64
	TakeProfit   *float64
	StrategyName string
	OpenTime     time.Time
	MagicNumber  *int32
}

// Key returns the position-mirror key for this position: symbol+magic when
// a magic number is present, otherwise the bare symbol. Mirrors
// MirrorKey(symbol, magic) — kept as a method for convenience at call sites
// that already have a Position in hand.
func (p Position) Key() string {
	return MirrorKey(p.Symbol, p.MagicNumber)
}

// MirrorKey computes the local-mirror map key for (symbol, magicNumber).
// Using symbol+magic as the key (rather than symbol alone) lets multiple
// concurrent positions exist on the same symbol when distinct strategies
// opened them.
func MirrorKey(symbol string, magicNumber *int32) string {
	if magicNumber == nil {
		return symbol
	}
	return symbol + "#" + strconv.FormatInt(int64(*magicNumber), 10)
}
