package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/tradecore/enginecore/internal/domain"
)

// ohlcvFetcher is the narrow slice of broker.Broker the service depends on.
// Declared locally (rather than importing the broker package) so this
// package has no dependency on the transport layer, only on its contract.
type ohlcvFetcher interface {
	GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error)
}

// Service fetches base-timeframe bars from the broker and resamples them
// to the union of timeframes active strategies require (§4.3, C4).
type Service struct {
	broker ohlcvFetcher
}

// New builds a market-data service over broker.
func New(broker ohlcvFetcher) *Service {
	return &Service{broker: broker}
}

// Get returns an immutable mapping target_timeframe -> aligned OHLCV series
// for symbol across [start, end]. The base timeframe (symbol.MinTimeframe)
// is always present in the result, unmodified. Targets strictly finer than
// the base are silently dropped from the result (§4.3.3): they cannot be
// produced by resampling.
func (s *Service) Get(
	ctx context.Context,
	symbol domain.SymbolConfig,
	targets []domain.Timeframe,
	start, end time.Time,
) (map[domain.Timeframe]domain.BarSeries, error) {
	base := symbol.MinTimeframe
	if !base.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedTimeframe, base)
	}
	for _, tf := range targets {
		if !tf.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedTimeframe, tf)
		}
	}

	baseSeries, err := s.broker.GetOHLCV(ctx, symbol.Name, base, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching base series for %s: %v", domain.ErrData, symbol.Name, err)
	}
	baseSeries.Symbol = symbol.Name
	baseSeries.Timeframe = base

	result := map[domain.Timeframe]domain.BarSeries{base: baseSeries}

	for _, tf := range targets {
		if tf == base {
			continue
		}
		finer, err := tf.Finer(base)
		if err != nil {
			return nil, err
		}
		if finer {
			// A target strictly finer than the base cannot be produced
			// by resampling; drop it from the result rather than error.
			continue
		}
		resampled, err := Resample(baseSeries, tf)
		if err != nil {
			return nil, err
		}
		resampled.Symbol = symbol.Name
		result[tf] = resampled
	}

	return result, nil
}

// defaultBarCaps is the per-max-timeframe cap on the number of max-timeframe
// bars used to size the historical query window (§4.5.1): the window is
// minutes(max_tf) × cap. The cap shrinks as the coarse timeframe grows so the
// equivalent base-timeframe request stays within broker-imposed limits,
// while still providing ≥500 coarse bars.
var defaultBarCaps = map[domain.Timeframe]int{
	domain.M1:  1440,
	domain.M5:  1440,
	domain.M15: 1000,
	domain.M30: 720,
	domain.H1:  500,
	domain.H4:  500,
	domain.D1:  500,
}

// DataWindow computes the historical window length needed to satisfy every
// timeframe in timeframes, per the cap table in §4.5.1. caps may be nil to
// use defaultBarCaps; passing a partial map falls back to the default for
// any timeframe it doesn't cover.
func DataWindow(timeframes []domain.Timeframe, caps map[domain.Timeframe]int) time.Duration {
	if len(timeframes) == 0 {
		return 0
	}
	maxTF := timeframes[0]
	maxMinutes, _ := maxTF.Minutes()
	for _, tf := range timeframes[1:] {
		m, ok := tf.Minutes()
		if ok && m > maxMinutes {
			maxMinutes = m
			maxTF = tf
		}
	}

	barCap, ok := caps[maxTF]
	if !ok || barCap == 0 {
		barCap = defaultBarCaps[maxTF]
	}
	return time.Duration(maxMinutes*barCap) * time.Minute
}
