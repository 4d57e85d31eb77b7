package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/playledger/internal/errs"
)

// Default bounds for store calls.
const (
	DefaultCallTimeout = 5 * time.Second
	DefaultMaxTries    = 4
)

// RetryPolicy bounds the retry wrapper around store calls.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        DefaultMaxTries,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// retryCall runs fn under the coordinator's retry policy. Each try gets its
// own timeout. Errors that retrying cannot fix stop immediately and are
// returned as is; anything else surviving every try becomes a transient store
// error.
func retryCall[T any](ctx context.Context, c *Coordinator, op string, fn func(context.Context) (T, error)) (T, error) {
	tries := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		v, err := fn(callCtx)
		if err != nil && (permanent(err) || ctx.Err() != nil) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(c.policy.backOff()),
		backoff.WithMaxTries(max(c.policy.MaxTries, 1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Debug("store call failed, retrying",
				slog.String("op", op),
				slog.Int("try", tries),
				slog.Duration("wait", wait),
				slog.Any("error", err))
		}),
	)
	if err == nil {
		return v, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if permanent(err) || ctx.Err() != nil {
		return v, err
	}
	c.log.Warn("store call abandoned",
		slog.String("op", op),
		slog.Int("tries", tries),
		slog.Any("error", err))
	return v, errs.Transient(op, err)
}

// retryDo is retryCall for calls without a result.
func retryDo(ctx context.Context, c *Coordinator, op string, fn func(context.Context) error) error {
	_, err := retryCall(ctx, c, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func permanent(err error) bool {
	return errs.IsValidation(err) ||
		errs.IsInvalidRow(err) ||
		errs.IsNotFound(err) ||
		errs.IsTransient(err) ||
		errors.Is(err, context.Canceled)
}
