package domain

import "time"

// Bar is a single OHLCV record. Timestamp is the UTC instant marking the
// start of the bar's interval.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// BarSeries is an ordered, strictly-increasing-by-timestamp sequence of bars
// for a single symbol and timeframe.
type BarSeries struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []Bar
}

// AlignedTo reports whether every bar in the series falls on a boundary of
// tf (timestamp is a multiple of tf minutes from the Unix epoch) and
// consecutive timestamps differ by exactly tf. An empty or single-bar
// series is vacuously aligned.
func (s BarSeries) AlignedTo(tf Timeframe) bool {
	minutes, ok := tf.Minutes()
	if !ok {
		return false
	}
	width := time.Duration(minutes) * time.Minute

	var prev time.Time
	for i, b := range s.Bars {
		if b.Timestamp.UTC().Unix()%int64(width/time.Second) != 0 {
			return false
		}
		if i > 0 && b.Timestamp.Sub(prev) != width {
			return false
		}
		prev = b.Timestamp
	}
	return true
}
