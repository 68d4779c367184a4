package domain

import "time"

// TradeRecord is a completed round-trip (open then close), the only input
// the risk evaluator consumes.
type TradeRecord struct {
	Symbol       string
	StrategyName string
	EntryTime    time.Time
	ExitTime     time.Time
	EntryPrice   float64
	ExitPrice    float64
	Size         float64
	PnL          float64
	StopLoss     *float64
	TakeProfit   *float64
}

// DedupKey is the 4-tuple used to decide whether a closed trade pulled from
// the broker is already present in local history. This is a known, narrow
// key: brokers that return identical tuples for genuinely distinct trades
// will be incorrectly deduplicated. Not to be widened silently.
type DedupKey struct {
	EntryTime    time.Time
	ExitTime     time.Time
	Symbol       string
	StrategyName string
}

// Key returns t's dedup key.
func (t TradeRecord) Key() DedupKey {
	return DedupKey{
		EntryTime:    t.EntryTime,
		ExitTime:     t.ExitTime,
		Symbol:       t.Symbol,
		StrategyName: t.StrategyName,
	}
}
