package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/enginecore/internal/domain"
)

type stubFetcher struct {
	series domain.BarSeries
	err    error
}

func (s *stubFetcher) GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error) {
	return s.series, s.err
}

func TestService_Get_IncludesBaseUnmodified(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := domain.BarSeries{Symbol: "EURUSD", Timeframe: domain.M5, Bars: []domain.Bar{
		{Timestamp: start, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Timestamp: start.Add(5 * time.Minute), Open: 2, High: 2, Low: 2, Close: 2, Volume: 1},
	}}
	svc := New(&stubFetcher{series: base})

	symbol := domain.SymbolConfig{Name: "EURUSD", MinTimeframe: domain.M5}
	result, err := svc.Get(context.Background(), symbol, []domain.Timeframe{domain.M5, domain.H1}, start, start.Add(10*time.Minute))
	require.NoError(t, err)

	require.Contains(t, result, domain.M5)
	assert.Equal(t, base.Bars, result[domain.M5].Bars)
}

func TestService_Get_DropsTargetsFinerThanBase(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := domain.BarSeries{Symbol: "EURUSD", Timeframe: domain.H1, Bars: []domain.Bar{
		{Timestamp: start, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}}
	svc := New(&stubFetcher{series: base})

	symbol := domain.SymbolConfig{Name: "EURUSD", MinTimeframe: domain.H1}
	result, err := svc.Get(context.Background(), symbol, []domain.Timeframe{domain.M1, domain.H4}, start, start)
	require.NoError(t, err)

	assert.NotContains(t, result, domain.M1, "target finer than base must not appear in result")
	assert.Contains(t, result, domain.H4)
	assert.Contains(t, result, domain.H1)
}

func TestService_Get_PropagatesDataError(t *testing.T) {
	svc := New(&stubFetcher{err: assertErr{"broker down"}})
	symbol := domain.SymbolConfig{Name: "EURUSD", MinTimeframe: domain.M1}
	_, err := svc.Get(context.Background(), symbol, []domain.Timeframe{domain.M1}, time.Now(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrData)
}

func TestService_Get_RejectsUnknownTimeframe(t *testing.T) {
	svc := New(&stubFetcher{})
	symbol := domain.SymbolConfig{Name: "EURUSD", MinTimeframe: "W1"}
	_, err := svc.Get(context.Background(), symbol, nil, time.Now(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedTimeframe)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
