// Package retry wraps a broker.Broker with exponential-backoff-with-jitter
// retries on transient transport failures, and stamps a client-order ID
// onto every SendMarketOrder call so a retried send can't create a
// duplicate position at the broker.
//
// Grounded on the teacher's internal/retry/client.go (same backoff/jitter
// math and isTransientError string-matching heuristic), generalized from a
// single strangle-close operation into a decorator over the whole
// broker.Broker contract so it composes with broker.CircuitBreakerBroker.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradecore/enginecore/internal/domain"
)

// transport is the narrow slice of broker.Broker this package depends on.
// Declared locally so internal/retry has no import-time dependency on the
// broker package's decorators, only its contract.
type transport interface {
	Connect(ctx context.Context) error
	GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error)
	SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)
	GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error)
}

// Config contains retry configuration parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client wraps a broker.Broker with retry logic for every operation.
type Client struct {
	next   transport
	logger *log.Logger
	config Config
}

// NewClient creates a retrying decorator around next with the given
// optional config.
func NewClient(next transport, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.Default()
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &Client{next: next, logger: logger, config: cfg}
}

func (c *Client) Connect(ctx context.Context) error {
	return c.retry(ctx, "connect", func(ctx context.Context) error {
		return c.next.Connect(ctx)
	})
}

func (c *Client) GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error) {
	var out domain.BarSeries
	err := c.retry(ctx, fmt.Sprintf("get_ohlcv(%s,%s)", symbol, tf), func(ctx context.Context) error {
		var err error
		out, err = c.next.GetOHLCV(ctx, symbol, tf, start, end)
		return err
	})
	return out, err
}

// SendMarketOrder stamps req with a fresh client-order ID (if it doesn't
// already carry one) before the first attempt, so every retry of the same
// logical order reuses the same ID and a broker that deduplicates on it
// can't double-fill.
func (c *Client) SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.New().String()
	}

	var out domain.OrderResult
	err := c.retry(ctx, fmt.Sprintf("send_market_order(%s,%s)", req.Kind, req.Symbol), func(ctx context.Context) error {
		var err error
		out, err = c.next.SendMarketOrder(ctx, req)
		return err
	})
	return out, err
}

func (c *Client) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	err := c.retry(ctx, "get_open_positions", func(ctx context.Context) error {
		var err error
		out, err = c.next.GetOpenPositions(ctx)
		return err
	})
	return out, err
}

func (c *Client) GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	err := c.retry(ctx, "get_closed_trades", func(ctx context.Context) error {
		var err error
		out, err = c.next.GetClosedTrades(ctx)
		return err
	})
	// ErrUnsupportedOperation is never transient; one attempt is enough,
	// which retry() already gives it by returning early on isUnsupported.
	return out, err
}

// retry calls fn, retrying on a transient error with exponential backoff
// and jitter, up to c.config.MaxRetries additional attempts, bounded by
// c.config.Timeout overall.
func (c *Client) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff
	attempts := 0

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return fmt.Errorf("%s: timed out after %v: %w", op, c.config.Timeout, err)
		}

		attempts = attempt + 1
		lastErr = fn(opCtx)
		if lastErr == nil {
			return nil
		}
		if isUnsupported(lastErr) {
			// Not a transport failure; retrying won't help.
			return lastErr
		}

		c.logger.Printf("retry: %s attempt %d/%d failed: %v", op, attempt+1, c.config.MaxRetries+1, lastErr)

		if !isTransientError(lastErr) || attempt >= c.config.MaxRetries {
			break
		}

		c.logger.Printf("retry: %s transient, retrying in %v", op, backoff)
		select {
		case <-time.After(backoff):
			backoff = c.nextBackoff(backoff)
		case <-opCtx.Done():
			return fmt.Errorf("%s: timed out during backoff: %w", op, opCtx.Err())
		}
	}

	return fmt.Errorf("%s: failed after %d attempt(s): %w", op, attempts, lastErr)
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Printf("retry: failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

func isUnsupported(err error) bool {
	for err != nil {
		if err == domain.ErrUnsupportedOperation {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// isTransientError classifies err by substring match against the
// transport-failure vocabulary a network client typically surfaces.
// Grounded verbatim on the teacher's pattern list.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"i/o timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"temporarily unavailable",
		"server error",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"network",
		"dns",
		"tcp",
		"no such host",
		"deadline exceeded",
		"tls handshake",
		"broken pipe",
		"eof",
		string(domain.ErrTransport.Error()),
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
