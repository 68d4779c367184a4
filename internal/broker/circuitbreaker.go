package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tradecore/enginecore/internal/domain"
)

// CircuitBreakerConfig tunes the breaker wrapping the underlying transport.
type CircuitBreakerConfig struct {
	// MaxRequests is the number of calls allowed through in the
	// half-open state before the breaker decides whether to close again.
	MaxRequests uint32
	// Interval is the cyclic period over which the closed-state failure
	// counter resets. Zero disables the reset.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// FailureThreshold trips the breaker open once this many consecutive
	// requests have failed.
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig matches the teacher's retry client's own
// backoff horizon: trip after 5 consecutive failures, stay open 30s.
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests:      1,
	Interval:         time.Minute,
	Timeout:          30 * time.Second,
	FailureThreshold: 5,
}

// CircuitBreakerBroker wraps a Broker with a gobreaker.CircuitBreaker so
// that a broker outage trips open after repeated TransportErrors instead of
// every cycle re-attempting (and re-timing-out) against a dead transport.
//
// The teacher's go.mod declares github.com/sony/gobreaker as a direct
// dependency and cmd/bot/main.go calls broker.NewCircuitBreakerBroker, but
// the wrapper itself is never defined in the teacher source — this
// completes that wiring.
type CircuitBreakerBroker struct {
	next Broker
	cb   *gobreaker.CircuitBreaker
}

// NewCircuitBreakerBroker wraps next with a circuit breaker named name.
func NewCircuitBreakerBroker(name string, next Broker, cfg CircuitBreakerConfig) *CircuitBreakerBroker {
	if cfg.MaxRequests == 0 {
		cfg = DefaultCircuitBreakerConfig
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &CircuitBreakerBroker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *CircuitBreakerBroker) Connect(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Connect(ctx)
	})
	return unwrapBreakerErr(err)
}

func (b *CircuitBreakerBroker) GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetOHLCV(ctx, symbol, tf, start, end)
	})
	if err != nil {
		return domain.BarSeries{}, unwrapBreakerErr(err)
	}
	return res.(domain.BarSeries), nil
}

func (b *CircuitBreakerBroker) SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.SendMarketOrder(ctx, req)
	})
	if err != nil {
		return domain.OrderResult{}, unwrapBreakerErr(err)
	}
	return res.(domain.OrderResult), nil
}

func (b *CircuitBreakerBroker) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetOpenPositions(ctx)
	})
	if err != nil {
		return nil, unwrapBreakerErr(err)
	}
	return res.([]domain.Position), nil
}

func (b *CircuitBreakerBroker) GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetClosedTrades(ctx)
	})
	if err != nil {
		return nil, unwrapBreakerErr(err)
	}
	return res.([]domain.TradeRecord), nil
}

// unwrapBreakerErr translates gobreaker's own sentinel errors into the
// core's TransportError taxonomy so callers only need to check one family
// of errors regardless of whether the breaker or the transport tripped.
func unwrapBreakerErr(err error) error {
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: circuit breaker open: %v", domain.ErrTransport, err)
	}
	return err
}
