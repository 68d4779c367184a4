package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/enginecore/internal/domain"
)

// stubBroker is a minimal Broker whose behavior is fully scripted by the
// test, used to drive the circuit breaker through trip/open/recover.
type stubBroker struct {
	sendErr  error
	rejected bool
}

func (s *stubBroker) Connect(ctx context.Context) error { return nil }

func (s *stubBroker) GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error) {
	return domain.BarSeries{Symbol: symbol, Timeframe: tf}, nil
}

func (s *stubBroker) SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if s.sendErr != nil {
		return domain.OrderResult{}, s.sendErr
	}
	if s.rejected {
		return domain.OrderResult{Success: false, ErrorMessage: "rejected"}, nil
	}
	return domain.OrderResult{Success: true, OrderID: "ok"}, nil
}

func (s *stubBroker) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (s *stubBroker) GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	return nil, nil
}

func TestCircuitBreakerBroker_TripsOpenAfterConsecutiveFailures(t *testing.T) {
	stub := &stubBroker{sendErr: errors.New("transport error: boom")}
	cbb := NewCircuitBreakerBroker("test", stub, CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	})

	ctx := context.Background()
	req := domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy, Volume: 1}

	_, err := cbb.SendMarketOrder(ctx, req)
	require.Error(t, err)
	_, err = cbb.SendMarketOrder(ctx, req)
	require.Error(t, err)

	// Breaker should now be open: the underlying stub is never called
	// again, and the error is translated into the TransportError family.
	_, err = cbb.SendMarketOrder(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestCircuitBreakerBroker_PassesThroughOnSuccess(t *testing.T) {
	stub := &stubBroker{}
	cbb := NewCircuitBreakerBroker("test-ok", stub, CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 5,
	})

	result, err := cbb.SendMarketOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy, Volume: 1})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.OrderID)
}

func TestCircuitBreakerBroker_RejectionIsNotATrippingFailure(t *testing.T) {
	// An OrderResult.Success=false is not an error at all, so the breaker
	// must not count it toward ConsecutiveFailures.
	stub := &stubBroker{rejected: true}
	cbb := NewCircuitBreakerBroker("test-reject", stub, CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 1,
	})

	for i := 0; i < 5; i++ {
		result, err := cbb.SendMarketOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy, Volume: 1})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "rejected", result.ErrorMessage)
	}
}

func TestCircuitBreakerBroker_GetOHLCVPassesThrough(t *testing.T) {
	stub := &stubBroker{}
	cbb := NewCircuitBreakerBroker("test-ohlcv", stub, CircuitBreakerConfig{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 5,
	})
	series, err := cbb.GetOHLCV(context.Background(), "EURUSD", domain.M1, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", series.Symbol)
}
