package domain

// OrderKind is the order-kind string understood at the broker boundary.
type OrderKind string

// Order kinds accepted by the broker interface.
const (
	OrderBuy   OrderKind = "BUY"
	OrderSell  OrderKind = "SELL"
	OrderClose OrderKind = "CLOSE"
)

// OrderRequest is dispatched to the broker by the order executor.
type OrderRequest struct {
	Symbol      string
	Volume      float64
	Kind        OrderKind
	StopLoss    *float64
	TakeProfit  *float64
	Comment     string
	MagicNumber *int32

	// ClientOrderID is an optional idempotency key generated by a
	// retrying transport decorator so a retried send can't create a
	// duplicate position at the broker. Not part of spec.md's data
	// model proper; empty means the transport doesn't use one.
	ClientOrderID string
}

// OrderResult is the outcome of one broker dispatch. A rejection is
// surfaced here, not as an error: OrderRejected is never raised.
type OrderResult struct {
	Success      bool
	OrderID      string
	ErrorMessage string
}
