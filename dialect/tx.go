package dialect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raillogistic/autogql"
)

// ErrRetryable marks provider errors after which the whole transaction may
// be retried, e.g. deadlocks and serialization failures.
var ErrRetryable = errors.New("dialect: retryable transaction error")

// Retryable wraps err so that IsRetryable reports true for it.
func Retryable(err error) error {
	if err == nil || errors.Is(err, ErrRetryable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

// IsRetryable reports if err allows retrying the transaction. Context
// errors never do.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRetryable)
}

// TxOption configures RunInTx.
type TxOption func(*txConfig)

type txConfig struct {
	retries int
	logger  *slog.Logger
}

// WithRetries sets how many times a transaction failing with a retryable
// error is run again.
func WithRetries(n int) TxOption {
	return func(c *txConfig) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithTxLogger sets the logger used to report retries.
func WithTxLogger(l *slog.Logger) TxOption {
	return func(c *txConfig) {
		c.logger = l
	}
}

// RunInTx runs fn in a transaction of p. The transaction is committed when
// fn returns nil and rolled back otherwise, including on panics. Retryable
// failures run fn again in a fresh transaction until the retry budget is
// exhausted; the last error is returned.
func RunInTx(ctx context.Context, p Provider, fn func(context.Context, Tx) error, opts ...TxOption) error {
	cfg := txConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return errors.Join(err, cerr)
			}
			return cerr
		}
		err = runOnce(ctx, p, fn)
		if err == nil || !IsRetryable(err) || attempt >= cfg.retries {
			return err
		}
		cfg.logger.Warn("retrying transaction", "attempt", attempt+1, "error", err)
	}
}

func runOnce(ctx context.Context, p Provider, fn func(context.Context, Tx) error) error {
	tx, err := p.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx, tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, &autogql.RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dialect: committing transaction: %w", err)
	}
	return nil
}

// TxFrom returns ex as a Tx when it already is one. Code that receives an
// Executor uses it to join an enclosing transaction instead of starting a
// new one.
func TxFrom(ex Executor) (Tx, bool) {
	tx, ok := ex.(Tx)
	return tx, ok
}
