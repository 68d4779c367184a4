package domain

// SignalKind is a strategy's intent for one symbol.
type SignalKind string

// The closed set of signal kinds a strategy may emit.
const (
	SignalBuy   SignalKind = "BUY"
	SignalSell  SignalKind = "SELL"
	SignalClose SignalKind = "CLOSE"
	SignalHold  SignalKind = "HOLD"
)

// Signal is a strategy's output for one symbol in one cycle. Ephemeral:
// never persisted, never round-tripped through the broker.
type Signal struct {
	Symbol       string
	StrategyName string
	Timeframe    Timeframe
	Kind         SignalKind
	Size         float64
	StopLoss     *float64
	TakeProfit   *float64
}
