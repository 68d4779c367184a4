package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/enginecore/internal/broker/fakebroker"
	"github.com/tradecore/enginecore/internal/domain"
	"github.com/tradecore/enginecore/internal/executor"
	"github.com/tradecore/enginecore/internal/registry"
	"github.com/tradecore/enginecore/internal/risk"
	"github.com/tradecore/enginecore/internal/strategy/smacross"

	"github.com/tradecore/enginecore/internal/marketdata"
)

func crossingSeries(symbol string, tf domain.Timeframe, closes []float64) domain.BarSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	minutes, _ := tf.Minutes()
	s := domain.BarSeries{Symbol: symbol, Timeframe: tf}
	for i, c := range closes {
		s.Bars = append(s.Bars, domain.Bar{
			Timestamp: start.Add(time.Duration(i*minutes) * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		})
	}
	return s
}

func newTestEngine(t *testing.T, fb *fakebroker.Broker, limits domain.RiskLimits, symbols []domain.SymbolConfig, strategies []domain.Strategy) *Engine {
	t.Helper()
	ex := executor.New(fb, nil)
	reg := registry.New()
	for _, s := range strategies {
		reg.Register(s.Name())
	}
	return New(Config{
		Broker:     fb,
		Risk:       risk.New(limits),
		Executor:   ex,
		Registry:   reg,
		Data:       marketdata.New(fb),
		Symbols:    symbols,
		Strategies: strategies,
	})
}

func TestRunOnce_GlobalGateBlocksAllDispatch(t *testing.T) {
	// Scenario 3: global drawdown limit tripped -> zero orders dispatched
	// for any symbol, even though nothing else would have blocked them.
	fb := fakebroker.New()
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9}))
	fb.SeedClosedTrades(domain.TradeRecord{
		Symbol: "EURUSD", StrategyName: "sma", PnL: -9000,
		EntryTime: time.Unix(0, 0), ExitTime: time.Unix(1, 0),
	})

	limit := 5.0
	limits := domain.RiskLimits{DDGlobal: &limit, InitialBalance: 10000}
	strat := smacross.New("sma", smacross.Config{FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1})
	symbols := []domain.SymbolConfig{{Name: "EURUSD", MinTimeframe: domain.M5}}

	e := newTestEngine(t, fb, limits, symbols, []domain.Strategy{strat})
	require.NoError(t, e.RunOnce(context.Background(), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	assert.Empty(t, fb.DispatchedOrders())
}

func TestRunOnce_PerSymbolIsolation(t *testing.T) {
	// Scenario 4: one symbol's drawdown limit is tripped, a second symbol
	// is unaffected and still dispatches.
	fb := fakebroker.New()
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9}))
	fb.SeedBars(crossingSeries("GBPUSD", domain.M5, []float64{9, 5, 1, 9}))
	fb.SeedClosedTrades(domain.TradeRecord{
		Symbol: "EURUSD", StrategyName: "sma", PnL: -9000,
		EntryTime: time.Unix(0, 0), ExitTime: time.Unix(1, 0),
	})

	limit := 5.0
	limits := domain.RiskLimits{
		DDPerSymbol:    map[string]float64{"EURUSD": limit},
		InitialBalance: 10000,
	}
	strat := smacross.New("sma", smacross.Config{FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1})
	symbols := []domain.SymbolConfig{
		{Name: "EURUSD", MinTimeframe: domain.M5},
		{Name: "GBPUSD", MinTimeframe: domain.M5},
	}

	e := newTestEngine(t, fb, limits, symbols, []domain.Strategy{strat})
	require.NoError(t, e.RunOnce(context.Background(), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	orders := fb.DispatchedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "GBPUSD", orders[0].Symbol)
}

func TestRunOnce_CrossoverDispatchesWithMagicNumberComment(t *testing.T) {
	fb := fakebroker.New()
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9}))

	strat := smacross.New("trend-following", smacross.Config{FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1})
	symbols := []domain.SymbolConfig{{Name: "EURUSD", MinTimeframe: domain.M5}}

	e := newTestEngine(t, fb, domain.RiskLimits{InitialBalance: 10000}, symbols, []domain.Strategy{strat})
	require.NoError(t, e.RunOnce(context.Background(), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	orders := fb.DispatchedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderBuy, orders[0].Kind)
	assert.Equal(t, "trend-following-M5", orders[0].Comment)
	require.NotNil(t, orders[0].MagicNumber)

	magic, ok := e.registry.MagicOf("trend-following")
	require.True(t, ok)
	assert.Equal(t, magic, *orders[0].MagicNumber)
}

func TestRunOnce_SecondCycleDoesNotRedispatchOpenPosition(t *testing.T) {
	fb := fakebroker.New()
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9}))

	strat := smacross.New("trend-following", smacross.Config{FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1})
	symbols := []domain.SymbolConfig{{Name: "EURUSD", MinTimeframe: domain.M5}}

	e := newTestEngine(t, fb, domain.RiskLimits{InitialBalance: 10000}, symbols, []domain.Strategy{strat})
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, e.RunOnce(context.Background(), now))
	require.Len(t, fb.DispatchedOrders(), 1)

	// Same bars again next cycle -> same sign -> HOLD -> no new dispatch.
	require.NoError(t, e.RunOnce(context.Background(), now.Add(5*time.Minute)))
	assert.Len(t, fb.DispatchedOrders(), 1)
}

func TestRunOnce_DataFetchFailureSkipsSymbolNotWholeCycle(t *testing.T) {
	fb := fakebroker.New()
	// EURUSD has no seeded bars -> GetOHLCV fails -> symbol skipped.
	fb.SeedBars(crossingSeries("GBPUSD", domain.M5, []float64{9, 5, 1, 9}))

	strat := smacross.New("sma", smacross.Config{FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1})
	symbols := []domain.SymbolConfig{
		{Name: "EURUSD", MinTimeframe: domain.M5},
		{Name: "GBPUSD", MinTimeframe: domain.M5},
	}

	e := newTestEngine(t, fb, domain.RiskLimits{InitialBalance: 10000}, symbols, []domain.Strategy{strat})
	require.NoError(t, e.RunOnce(context.Background(), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	orders := fb.DispatchedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "GBPUSD", orders[0].Symbol)
}

func TestRunOnce_UnsupportedClosedTradesLeavesHistoryUnchanged(t *testing.T) {
	fb := fakebroker.New()
	fb.UnsupportClosedTrades(true)
	symbols := []domain.SymbolConfig{{Name: "EURUSD", MinTimeframe: domain.M5}}

	e := newTestEngine(t, fb, domain.RiskLimits{InitialBalance: 10000}, symbols, nil)
	require.NoError(t, e.RunOnce(context.Background(), time.Now().UTC()))
	assert.Empty(t, e.History())
}

func TestRunOnce_AllowedSymbolsRestrictsStrategyParticipation(t *testing.T) {
	fb := fakebroker.New()
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9}))
	fb.SeedBars(crossingSeries("GBPUSD", domain.M5, []float64{9, 5, 1, 9}))

	strat := smacross.New("eur-only", smacross.Config{
		FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1,
		AllowedSymbols: []string{"EURUSD"},
	})
	symbols := []domain.SymbolConfig{
		{Name: "EURUSD", MinTimeframe: domain.M5},
		{Name: "GBPUSD", MinTimeframe: domain.M5},
	}

	e := newTestEngine(t, fb, domain.RiskLimits{InitialBalance: 10000}, symbols, []domain.Strategy{strat})
	require.NoError(t, e.RunOnce(context.Background(), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	orders := fb.DispatchedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "EURUSD", orders[0].Symbol)
}

func TestRunOnce_ReconcilePrecedesRiskAndDataFetch(t *testing.T) {
	// A losing closed trade pulled during reconcile must be visible to the
	// global risk gate in the same cycle that discovered it, before any
	// data fetch or dispatch happens.
	fb := fakebroker.New()
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9}))
	fb.SeedClosedTrades(domain.TradeRecord{
		Symbol: "EURUSD", StrategyName: "sma", PnL: -9500,
		EntryTime: time.Unix(0, 0), ExitTime: time.Unix(1, 0),
	})

	limit := 1.0
	limits := domain.RiskLimits{DDGlobal: &limit, InitialBalance: 10000}
	strat := smacross.New("sma", smacross.Config{FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1})
	symbols := []domain.SymbolConfig{{Name: "EURUSD", MinTimeframe: domain.M5}}

	e := newTestEngine(t, fb, limits, symbols, []domain.Strategy{strat})
	require.NoError(t, e.RunOnce(context.Background(), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	require.Len(t, e.History(), 1)
	assert.Empty(t, fb.DispatchedOrders())
}

func TestRunOnce_CancelledContextStopsSymbolLoop(t *testing.T) {
	fb := fakebroker.New()
	symbols := []domain.SymbolConfig{{Name: "EURUSD", MinTimeframe: domain.M5}, {Name: "GBPUSD", MinTimeframe: domain.M5}}

	e := newTestEngine(t, fb, domain.RiskLimits{InitialBalance: 10000}, symbols, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.RunOnce(ctx, time.Now().UTC())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestRunOnce_CloseFollowsEarlierBuyAcrossCycles(t *testing.T) {
	fb := fakebroker.New()
	strat := smacross.New("sma", smacross.Config{FastPeriod: 2, SlowPeriod: 3, Timeframe: domain.M5, Size: 1})
	symbols := []domain.SymbolConfig{{Name: "EURUSD", MinTimeframe: domain.M5}}
	e := newTestEngine(t, fb, domain.RiskLimits{InitialBalance: 10000}, symbols, []domain.Strategy{strat})

	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	// Cycle 1: rising crossover -> BUY, position opens.
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9}))
	require.NoError(t, e.RunOnce(context.Background(), now))
	require.True(t, e.executor.HasOpenPosition("EURUSD", "sma", nil))

	// Cycle 2: series falls back below, flipping sign again -> CLOSE.
	fb.SeedBars(crossingSeries("EURUSD", domain.M5, []float64{9, 5, 1, 9, 1, 1}))
	require.NoError(t, e.RunOnce(context.Background(), now.Add(5*time.Minute)))

	orders := fb.DispatchedOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, domain.OrderBuy, orders[0].Kind)
	assert.Equal(t, domain.OrderClose, orders[1].Kind)
	assert.False(t, e.executor.HasOpenPosition("EURUSD", "sma", nil))
}
