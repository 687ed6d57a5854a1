// Package retry implements the exponential-backoff retry helpers used by
// the HTTP embedding client. The task runtime's own fixed-delay job retries
// (10s/5s, spec-mandated rather than exponential) are a distinct, simpler
// mechanism that classifies failures by pkg/ucrserrors type rather than by
// this package's IsRetryableError; see pkg/tasks.
package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig controls an exponential-backoff retry loop.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryConfig is the general-purpose baseline for outbound network
// calls. The HTTP embedding client sets its own shorter, jitter-free config
// instead.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// DatabaseRetryConfig favors more attempts with a gentler multiplier, tuned
// for transient Postgres contention (deadlocks, serialization failures,
// connection exhaustion).
func DatabaseRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 1.5,
		Jitter:            true,
	}
}

var retryableMessageFragments = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"too many connections",
	"deadlock detected",
	"lock timeout",
	"serialization failure",
	"could not serialize access",
	"connection lost",
	"closed the connection unexpectedly",
	"broken pipe",
	"i/o timeout",
	"network is unreachable",
	"no route to host",
}

// RetryableError explicitly tags an error as retryable or not, overriding
// message-based classification for call sites that already know better.
type RetryableError struct {
	cause     error
	retryable bool
	reason    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable=%t (%s): %s", e.retryable, e.reason, e.cause.Error())
}

func (e *RetryableError) Unwrap() error {
	return e.cause
}

// WrapRetryableError tags cause with an explicit retryable verdict. Returns
// nil if cause is nil.
func WrapRetryableError(cause error, retryable bool, reason string) error {
	if cause == nil {
		return nil
	}
	return &RetryableError{cause: cause, retryable: retryable, reason: reason}
}

// IsRetryableError classifies err as transient. An explicit RetryableError
// wrapper anywhere in the chain wins; otherwise context.Canceled is never
// retryable, context.DeadlineExceeded and sql.ErrConnDone are, and anything
// else falls back to a message substring match.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var tagged *RetryableError
	if errors.As(err, &tagged) {
		return tagged.retryable
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range retryableMessageFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// Operation is a unit of retryable work, told which attempt (1-indexed)
// it is currently on.
type Operation func(ctx context.Context, attempt int) (any, error)

// Retrier runs an Operation with exponential backoff per RetryConfig.
type Retrier struct {
	config RetryConfig
	logger *logrus.Logger
}

// NewRetrier builds a Retrier. A nil logger is tolerated; log calls are
// simply skipped.
func NewRetrier(config RetryConfig, logger *logrus.Logger) *Retrier {
	return &Retrier{config: config, logger: logger}
}

func (r *Retrier) logf(attempt int, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WithError(err).WithField("attempt", attempt).Warn("operation failed, will retry")
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= r.config.BackoffMultiplier
	}
	delay := time.Duration(d)
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// ExecuteWithType runs op, retrying retryable failures up to MaxAttempts
// times (at least once regardless of MaxAttempts), honoring context
// cancellation between attempts.
func (r *Retrier) ExecuteWithType(ctx context.Context, op Operation) (any, error) {
	maxAttempts := r.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt == maxAttempts {
			break
		}

		r.logf(attempt, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}

	return nil, fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}

// DatabaseRetrier is a Retrier pre-configured with DatabaseRetryConfig,
// adding an operation-name label to its log lines.
type DatabaseRetrier struct {
	retrier *Retrier
}

// NewDatabaseRetrier builds a DatabaseRetrier.
func NewDatabaseRetrier(logger *logrus.Logger) *DatabaseRetrier {
	return &DatabaseRetrier{retrier: NewRetrier(DatabaseRetryConfig(), logger)}
}

// ExecuteDBOperation runs op under the database retry policy, annotating
// failures with the operation name.
func (d *DatabaseRetrier) ExecuteDBOperation(ctx context.Context, name string, op Operation) (any, error) {
	result, err := d.retrier.ExecuteWithType(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("database operation %q failed: %w", name, err)
	}
	return result, nil
}

// RetryIfNeeded is a simple wrapper for existing error-only functions that
// don't need a result value or an attempt number.
func RetryIfNeeded(ctx context.Context, config RetryConfig, logger *logrus.Logger, op func() error) error {
	retrier := NewRetrier(config, logger)
	_, err := retrier.ExecuteWithType(ctx, func(ctx context.Context, attempt int) (any, error) {
		return nil, op()
	})
	return err
}
