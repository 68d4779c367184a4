// Package loop provides the two loop drivers (C7) that repeatedly invoke
// the cycle engine: a fixed-interval driver with no drift compensation,
// and a candle-aligned driver that recomputes the next bar boundary every
// iteration so missed or slow cycles self-correct.
//
// Grounded on the teacher's cmd/bot main-loop shape (select on a ticker vs.
// a context-done channel, log-and-continue on a per-cycle error) and on
// the original source's scheduling loop in bot_engine.py, generalized from
// its single fixed-interval shape into the two drivers §4.6 requires.
package loop

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tradecore/enginecore/internal/domain"
)

// RecoverySleep is how long the candle-aligned loop waits after a
// non-cancellation error before retrying (§4.6).
const RecoverySleep = 10 * time.Second

// Runner is the cycle engine's boundary contract as seen by a loop driver.
type Runner interface {
	RunOnce(ctx context.Context, now time.Time) error
}

// Clock abstracts time so loop drivers are deterministically testable.
// Sleep blocks until d elapses or ctx is done, returning ctx.Err() in the
// latter case.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock is the production Clock, backed by time.Now and a timer
// selecting against ctx.Done().
type realClock struct{}

// RealClock is the production Clock implementation.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.Default()
	}
	return logger
}

// isCancelled reports whether err wraps domain.ErrCancelled or is a
// context cancellation/deadline, either of which is terminal for a loop
// driver.
func isCancelled(err error) bool {
	return errors.Is(err, domain.ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
