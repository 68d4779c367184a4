// Package fakebroker is an in-memory reference implementation of
// broker.Broker. Like the teacher's internal/mock package, it exists so the
// core's boundary contract has at least one deterministic, no-network
// implementation to test against. It is not part of the core.
package fakebroker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tradecore/enginecore/internal/domain"
)

// Broker is a deterministic, in-memory stand-in for a real brokerage
// transport. All methods are safe for concurrent use.
type Broker struct {
	mu sync.Mutex

	bars          map[string]domain.BarSeries // symbol -> base series
	positions     map[string]domain.Position  // mirror key -> position
	closedTrades  []domain.TradeRecord
	orders        []domain.OrderRequest
	nextOrderID   int
	rejectOrders  bool
	unsupportHist bool
	failNextSync  bool
}

// New returns an empty fake broker.
func New() *Broker {
	return &Broker{
		bars:      make(map[string]domain.BarSeries),
		positions: make(map[string]domain.Position),
	}
}

// SeedBars installs a base-timeframe series for its symbol. GetOHLCV
// returns the seeded bars that fall within the requested [start, end], and
// fails with ErrData when the requested timeframe differs from the seeded
// one.
func (b *Broker) SeedBars(series domain.BarSeries) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars[series.Symbol] = series
}

// SeedPosition installs a position as if the broker already reports it
// open, keyed the same way the order executor keys its mirror.
func (b *Broker) SeedPosition(p domain.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[p.Key()] = p
}

// SeedClosedTrades installs trades to be returned by GetClosedTrades.
func (b *Broker) SeedClosedTrades(trades ...domain.TradeRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closedTrades = append(b.closedTrades, trades...)
}

// RejectOrders makes every subsequent SendMarketOrder return a rejection
// instead of succeeding.
func (b *Broker) RejectOrders(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectOrders = reject
}

// UnsupportClosedTrades makes GetClosedTrades return
// ErrUnsupportedOperation, simulating a broker without trade-history
// retrieval.
func (b *Broker) UnsupportClosedTrades(unsupported bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsupportHist = unsupported
}

// FailNextSync makes the next GetOpenPositions call return a transport
// error, simulating a transient outage during sync().
func (b *Broker) FailNextSync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNextSync = true
}

// DispatchedOrders returns every order accepted by SendMarketOrder so far,
// in dispatch order.
func (b *Broker) DispatchedOrders() []domain.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OrderRequest, len(b.orders))
	copy(out, b.orders)
	return out
}

func (b *Broker) Connect(ctx context.Context) error {
	return nil
}

func (b *Broker) GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	series, ok := b.bars[symbol]
	if !ok {
		return domain.BarSeries{}, fmt.Errorf("%w: no seeded bars for %s", domain.ErrData, symbol)
	}
	if series.Timeframe != tf {
		return domain.BarSeries{}, fmt.Errorf("%w: seeded series for %s is %s, requested %s", domain.ErrData, symbol, series.Timeframe, tf)
	}
	filtered := domain.BarSeries{Symbol: series.Symbol, Timeframe: series.Timeframe}
	for _, bar := range series.Bars {
		if !bar.Timestamp.Before(start) && !bar.Timestamp.After(end) {
			filtered.Bars = append(filtered.Bars, bar)
		}
	}
	return filtered, nil
}

func (b *Broker) SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rejectOrders {
		return domain.OrderResult{Success: false, ErrorMessage: "fake broker: orders rejected"}, nil
	}

	b.nextOrderID++
	orderID := fmt.Sprintf("fake-%d", b.nextOrderID)
	b.orders = append(b.orders, req)

	key := domain.MirrorKey(req.Symbol, req.MagicNumber)
	switch req.Kind {
	case domain.OrderBuy, domain.OrderSell:
		b.positions[key] = domain.Position{
			Symbol:       req.Symbol,
			Volume:       req.Volume,
			StrategyName: req.Comment,
			OpenTime:     time.Now().UTC(),
			MagicNumber:  req.MagicNumber,
		}
	case domain.OrderClose:
		if req.MagicNumber != nil {
			delete(b.positions, key)
		} else {
			for k, p := range b.positions {
				if p.Symbol == req.Symbol {
					delete(b.positions, k)
				}
			}
		}
	}
	return domain.OrderResult{Success: true, OrderID: orderID}, nil
}

func (b *Broker) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNextSync {
		b.failNextSync = false
		return nil, fmt.Errorf("%w: fake broker: simulated outage", domain.ErrTransport)
	}
	keys := make([]string, 0, len(b.positions))
	for k := range b.positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.Position, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.positions[k])
	}
	return out, nil
}

func (b *Broker) GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsupportHist {
		return nil, fmt.Errorf("%w: fake broker: closed-trade history disabled", domain.ErrUnsupportedOperation)
	}
	out := make([]domain.TradeRecord, len(b.closedTrades))
	copy(out, b.closedTrades)
	return out, nil
}
