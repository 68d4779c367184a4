// Package executor owns the local mirror of open positions and dispatches
// orders to the broker, answering "does a position already exist for
// (symbol, magic)?" so the cycle engine never double-dispatches.
//
// Grounded on the original source's OrderExecutor (sync_state/execute_order
// /_register_position/_remove_position/has_open_position) and the
// teacher's internal/orders/manager.go for the broker-call shape.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/tradecore/enginecore/internal/domain"
)

// dispatcher is the narrow slice of broker.Broker the executor depends on.
type dispatcher interface {
	SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)
}

// Executor holds open_positions: key -> Position (§4.4). All state is
// owned exclusively by the cycle engine and mutated only on the cycle
// goroutine (§5); the internal mutex exists purely so reads from outside
// the cycle (e.g. OpenPositions snapshots for reporting) don't race.
type Executor struct {
	broker dispatcher
	logger *log.Logger

	mu            sync.RWMutex
	openPositions map[string]domain.Position
}

// New builds an order executor over broker. A nil logger defaults to
// log.Default(), matching the teacher's nil-logger handling.
func New(broker dispatcher, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		broker:        broker,
		logger:        logger,
		openPositions: make(map[string]domain.Position),
	}
}

// Sync fetches the authoritative position list from the broker and
// replaces the local mirror. On broker error, the mirror is left
// untouched — not cleared — so a transient outage can't produce false
// negatives in dedup checks (§4.4, §9).
func (e *Executor) Sync(ctx context.Context) error {
	positions, err := e.broker.GetOpenPositions(ctx)
	if err != nil {
		e.logger.Printf("sync: broker error, leaving mirror intact: %v", err)
		return fmt.Errorf("%w: sync: %v", domain.ErrTransport, err)
	}

	rebuilt := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		rebuilt[p.Key()] = p
	}

	e.mu.Lock()
	e.openPositions = rebuilt
	e.mu.Unlock()

	e.logger.Printf("sync: mirror rebuilt with %d open position(s)", len(rebuilt))
	return nil
}

// Execute dispatches req to the broker and updates the local mirror on
// acceptance. A rejection leaves the mirror unmodified and is reported via
// the returned OrderResult, not as an error (§4.4/§7: OrderRejected is not
// an exception).
func (e *Executor) Execute(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	result, err := e.broker.SendMarketOrder(ctx, req)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: execute: %v", domain.ErrTransport, err)
	}
	if !result.Success {
		e.logger.Printf("order rejected for %s: %s", req.Symbol, result.ErrorMessage)
		return result, nil
	}

	key := domain.MirrorKey(req.Symbol, req.MagicNumber)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch req.Kind {
	case domain.OrderBuy, domain.OrderSell:
		// Entry price is filled as 0 locally; the next sync() overwrites
		// it with the broker's authoritative fill price (§9).
		e.openPositions[key] = domain.Position{
			Symbol:       req.Symbol,
			Volume:       req.Volume,
			StopLoss:     req.StopLoss,
			TakeProfit:   req.TakeProfit,
			StrategyName: req.Comment,
			MagicNumber:  req.MagicNumber,
		}
	case domain.OrderClose:
		if req.MagicNumber != nil {
			delete(e.openPositions, key)
		} else {
			// Fallback, not the preferred path: remove every local
			// entry whose symbol matches.
			for k, p := range e.openPositions {
				if p.Symbol == req.Symbol {
					delete(e.openPositions, k)
				}
			}
		}
	}

	e.logger.Printf("order accepted: %s %s volume=%v id=%s", req.Kind, req.Symbol, req.Volume, result.OrderID)
	return result, nil
}

// HasOpenPosition reports whether a position already exists matching the
// given criteria. With a magic number supplied, this is an O(1) direct key
// probe — the preferred path. Without one, it falls back to a linear scan
// matching by symbol and, optionally, a strategyName prefix (legacy
// fallback, §4.4).
func (e *Executor) HasOpenPosition(symbol string, strategyName string, magicNumber *int32) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if magicNumber != nil {
		_, ok := e.openPositions[domain.MirrorKey(symbol, magicNumber)]
		return ok
	}

	for _, p := range e.openPositions {
		if p.Symbol != symbol {
			continue
		}
		if strategyName == "" || strings.HasPrefix(p.StrategyName, strategyName) {
			return true
		}
	}
	return false
}

// OpenPositions returns a snapshot of the current mirror, for reporting.
func (e *Executor) OpenPositions() []domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Position, 0, len(e.openPositions))
	for _, p := range e.openPositions {
		out = append(out, p)
	}
	return out
}
