package loop

import (
	"context"
	"log"
	"time"
)

// RunFixedInterval calls r.RunOnce, sleeps interval, and repeats — with no
// drift compensation: if a cycle runs long, the next one starts interval
// after the previous one *finished*, not on a fixed wall-clock grid (§4.6).
// A per-cycle error is logged and the loop continues; only a cancellation
// (external interrupt) is terminal, per §7's propagation policy.
func RunFixedInterval(ctx context.Context, r Runner, interval time.Duration, clock Clock, logger *log.Logger) error {
	if clock == nil {
		clock = RealClock
	}
	logger = newLogger(logger)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		now := clock.Now()
		if err := r.RunOnce(ctx, now); err != nil {
			if isCancelled(err) {
				return nil
			}
			logger.Printf("loop: run_once failed, continuing: %v", err)
		}

		if err := clock.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}
