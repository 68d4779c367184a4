package loop

import (
	"context"
	"log"
	"time"
)

// NextBoundary returns the first multiple of timeframeMinutes past the UTC
// epoch that lies strictly after now, plus waitAfterClose. A boundary equal
// to now counts as already passed, so the following boundary is used; a now
// inside the current boundary's wait window also moves on to the following
// boundary (§4.6 step 3).
func NextBoundary(now time.Time, timeframeMinutes int, waitAfterClose time.Duration) time.Time {
	width := time.Duration(timeframeMinutes) * time.Minute
	u := now.UTC()

	boundary := u.Truncate(width)
	if !boundary.After(u) {
		boundary = boundary.Add(width)
	}
	target := boundary.Add(waitAfterClose)

	for !target.After(u) {
		boundary = boundary.Add(width)
		target = boundary.Add(waitAfterClose)
	}
	return target
}

// RunCandleAligned sleeps until the next candle boundary (plus
// waitAfterClose), calls r.RunOnce, and repeats. The next boundary is
// recomputed from the current time on every iteration, so a slow or missed
// cycle self-corrects by skipping ahead rather than accumulating drift
// (§9's resolved design note). A per-cycle error is logged and the loop
// sleeps RecoverySleep before continuing; only a cancellation is terminal.
func RunCandleAligned(ctx context.Context, r Runner, timeframeMinutes int, waitAfterClose time.Duration, clock Clock, logger *log.Logger) error {
	if clock == nil {
		clock = RealClock
	}
	logger = newLogger(logger)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		next := NextBoundary(clock.Now(), timeframeMinutes, waitAfterClose)
		if err := clock.Sleep(ctx, next.Sub(clock.Now())); err != nil {
			return nil
		}

		now := clock.Now()
		if err := r.RunOnce(ctx, now); err != nil {
			if isCancelled(err) {
				return nil
			}
			logger.Printf("loop: run_once failed, recovering in %s: %v", RecoverySleep, err)
			if err := clock.Sleep(ctx, RecoverySleep); err != nil {
				return nil
			}
		}
	}
}
