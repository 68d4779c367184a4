package marketdata

import (
	"time"

	"github.com/tradecore/enginecore/internal/domain"
)

// Resample aggregates base into bars aligned to target. base must already
// be sorted by ascending timestamp. Grounded on the original source's
// pandas .resample(...).agg({"open":"first", ...}) — reimplemented here as
// an explicit half-open-interval grouping since the core has no DataFrame
// equivalent.
//
// Intervals with no base bar are dropped, never emitted as gaps (§4.3.4).
func Resample(base domain.BarSeries, target domain.Timeframe) (domain.BarSeries, error) {
	minutes, ok := target.Minutes()
	if !ok {
		return domain.BarSeries{}, &UnsupportedTimeframeError{Timeframe: target}
	}
	width := time.Duration(minutes) * time.Minute

	out := domain.BarSeries{Symbol: base.Symbol, Timeframe: target}
	if len(base.Bars) == 0 {
		return out, nil
	}

	var bucketStart time.Time
	var bucket []domain.Bar

	flush := func() {
		if len(bucket) == 0 {
			return
		}
		out.Bars = append(out.Bars, aggregate(bucketStart, bucket))
	}

	for _, bar := range base.Bars {
		start := alignDown(bar.Timestamp, width)
		if bucket == nil {
			bucketStart = start
		} else if !start.Equal(bucketStart) {
			flush()
			bucket = nil
			bucketStart = start
		}
		bucket = append(bucket, bar)
	}
	flush()

	return out, nil
}

// alignDown floors t to the nearest multiple of width since the Unix
// epoch, in UTC.
func alignDown(t time.Time, width time.Duration) time.Time {
	t = t.UTC()
	sec := t.Unix()
	w := int64(width / time.Second)
	floored := (sec / w) * w
	if sec < 0 && sec%w != 0 {
		floored -= w
	}
	return time.Unix(floored, 0).UTC()
}

// aggregate folds bucket (all bars within one target interval, in
// timestamp order) into a single coarse bar per the OHLCV aggregation
// rule: open=first, high=max, low=min, close=last, volume=sum.
func aggregate(bucketStart time.Time, bucket []domain.Bar) domain.Bar {
	agg := domain.Bar{
		Timestamp: bucketStart,
		Open:      bucket[0].Open,
		High:      bucket[0].High,
		Low:       bucket[0].Low,
		Close:     bucket[len(bucket)-1].Close,
	}
	for _, b := range bucket {
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Volume += b.Volume
	}
	return agg
}

// UnsupportedTimeframeError wraps domain.ErrUnsupportedTimeframe with the
// offending timeframe for logging.
type UnsupportedTimeframeError struct {
	Timeframe domain.Timeframe
}

func (e *UnsupportedTimeframeError) Error() string {
	return "unsupported timeframe: " + string(e.Timeframe)
}

func (e *UnsupportedTimeframeError) Unwrap() error {
	return domain.ErrUnsupportedTimeframe
}
