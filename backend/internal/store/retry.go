package store

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	apperrors "graphfeed/backend/pkg/errors"
)

// RetryPolicy bounds how an operation is retried
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is used when a caller passes a zero policy
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseBackoff: 20 * time.Millisecond,
	MaxBackoff:  time.Second,
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultRetryPolicy.BaseBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff * 50
	}
	return p
}

// backoff returns the wait before the given attempt (attempt >= 1),
// exponential with full jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff << (attempt - 1)
	if d <= 0 || d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return time.Duration(rand.Int64N(int64(d)) + 1)
}

// Retry runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. It returns the number of attempts made and the last error.
func Retry(ctx context.Context, policy RetryPolicy, log *zap.Logger, op string, fn func(ctx context.Context) error) (int, error) {
	policy = policy.normalized()
	if log == nil {
		log = zap.NewNop()
	}

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := policy.backoff(attempt)
			log.Debug("Retrying store operation",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, apperrors.NewContextCancelled(op, ctx.Err())
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if !apperrors.IsRetryable(err) {
			return attempt + 1, err
		}
	}

	return policy.MaxAttempts, err
}
