// Package broker defines the boundary contract the core consumes for
// brokerage transport, plus a circuit-breaker decorator that wraps any
// concrete Broker. Concrete transports live in subpackages (refbroker,
// fakebroker).
package broker

import (
	"context"
	"time"

	"github.com/tradecore/enginecore/internal/domain"
)

// Broker is the exact, closed set of operations the core depends on. The
// concrete transport (REST, FIX, a vendor SDK) is an external collaborator;
// the core only ever sees this interface.
type Broker interface {
	// Connect establishes the broker session. Failures are
	// ConnectionError-flavored TransportErrors.
	Connect(ctx context.Context) error

	// GetOHLCV returns the base-timeframe bar series for symbol across
	// [start, end], aligned and tagged with symbol. DataError or
	// TransportError on failure.
	GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error)

	// SendMarketOrder dispatches req and returns the broker's
	// acceptance/rejection. Transport exceptions propagate as an error;
	// a rejection is reported via OrderResult.Success=false, not an
	// error.
	SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)

	// GetOpenPositions returns every currently-open position the broker
	// reports for this account.
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)

	// GetClosedTrades returns completed round trips. A broker that can't
	// supply this returns ErrUnsupportedOperation, treated by the core
	// as "no new trades".
	GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error)
}
