package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/enginecore/internal/domain"
)

// fakeTransport scripts a sequence of failures before eventually
// succeeding (or not), counting calls per method.
type fakeTransport struct {
	sendCalls int32
	failUntil int32 // SendMarketOrder fails for calls < failUntil
	failErr   error

	unsupportedClosedTrades bool

	lastClientOrderID string
	clientOrderIDs    []string
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }

func (f *fakeTransport) GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error) {
	return domain.BarSeries{Symbol: symbol, Timeframe: tf}, nil
}

func (f *fakeTransport) SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	n := atomic.AddInt32(&f.sendCalls, 1)
	f.lastClientOrderID = req.ClientOrderID
	f.clientOrderIDs = append(f.clientOrderIDs, req.ClientOrderID)
	if n <= f.failUntil {
		return domain.OrderResult{}, f.failErr
	}
	return domain.OrderResult{Success: true, OrderID: "ok"}, nil
}

func (f *fakeTransport) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakeTransport) GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	if f.unsupportedClosedTrades {
		return nil, fmt.Errorf("%w: get_closed_trades", domain.ErrUnsupportedOperation)
	}
	return nil, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *log.Logger {
	return log.New(discardWriter{}, "", 0)
}

func TestSendMarketOrder_RetriesTransientErrorThenSucceeds(t *testing.T) {
	fake := &fakeTransport{failUntil: 2, failErr: fmt.Errorf("%w: connection reset", domain.ErrTransport)}
	client := NewClient(fake, quietLogger(), Config{
		MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second,
	})

	result, err := client.SendMarketOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.EqualValues(t, 3, fake.sendCalls)
}

func TestSendMarketOrder_GivesUpAfterMaxRetries(t *testing.T) {
	fake := &fakeTransport{failUntil: 100, failErr: fmt.Errorf("%w: connection reset", domain.ErrTransport)}
	client := NewClient(fake, quietLogger(), Config{
		MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second,
	})

	_, err := client.SendMarketOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy})
	require.Error(t, err)
	assert.EqualValues(t, 3, fake.sendCalls) // initial attempt + 2 retries
}

func TestSendMarketOrder_DoesNotRetryPermanentError(t *testing.T) {
	fake := &fakeTransport{failUntil: 100, failErr: errors.New("validation failed: bad symbol")}
	client := NewClient(fake, quietLogger(), Config{
		MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second,
	})

	_, err := client.SendMarketOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy})
	require.Error(t, err)
	assert.EqualValues(t, 1, fake.sendCalls)
}

func TestSendMarketOrder_StampsClientOrderIDOnce(t *testing.T) {
	fake := &fakeTransport{failUntil: 2, failErr: fmt.Errorf("%w: timeout", domain.ErrTransport)}
	client := NewClient(fake, quietLogger(), Config{
		MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second,
	})

	_, err := client.SendMarketOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy})
	require.NoError(t, err)
	assert.NotEmpty(t, fake.lastClientOrderID)
	require.Len(t, fake.clientOrderIDs, 3)
	assert.Equal(t, fake.clientOrderIDs[0], fake.clientOrderIDs[1])
	assert.Equal(t, fake.clientOrderIDs[0], fake.clientOrderIDs[2])
}

func TestSendMarketOrder_PreservesCallerSuppliedClientOrderID(t *testing.T) {
	fake := &fakeTransport{}
	client := NewClient(fake, quietLogger(), DefaultConfig)

	_, err := client.SendMarketOrder(context.Background(), domain.OrderRequest{
		Symbol: "EURUSD", Kind: domain.OrderBuy, ClientOrderID: "caller-supplied",
	})
	require.NoError(t, err)
	assert.Equal(t, "caller-supplied", fake.lastClientOrderID)
}

func TestGetClosedTrades_UnsupportedIsNotRetried(t *testing.T) {
	fake := &fakeTransport{unsupportedClosedTrades: true}
	client := NewClient(fake, quietLogger(), Config{
		MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second,
	})

	_, err := client.GetClosedTrades(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	fake := &fakeTransport{failUntil: 100, failErr: fmt.Errorf("%w: connection reset", domain.ErrTransport)}
	client := NewClient(fake, quietLogger(), Config{
		MaxRetries: 10, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, Timeout: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SendMarketOrder(ctx, domain.OrderRequest{Symbol: "EURUSD", Kind: domain.OrderBuy})
	require.Error(t, err)
}

func TestNewClient_SanitizesInvalidConfig(t *testing.T) {
	client := NewClient(&fakeTransport{}, nil, Config{MaxRetries: -1, MaxBackoff: time.Millisecond, InitialBackoff: time.Second})
	assert.GreaterOrEqual(t, client.config.MaxRetries, 0)
	assert.GreaterOrEqual(t, client.config.MaxBackoff, client.config.InitialBackoff)
}
