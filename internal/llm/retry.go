package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits delay×n before the n-th retry.
type linearBackOff struct {
	delay   time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// withRetry runs op up to maxAttempts times with linear backoff. Fatal
// provider errors, invalid input and permanent errors stop immediately.
func withRetry(ctx context.Context, maxAttempts int, delay time.Duration, op func() error, notify func(err error, wait time.Duration)) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{delay: delay}, uint64(maxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidInput) || isFatalAPIError(err) {
			return backoff.Permanent(wrapFatalError(err))
		}
		return err
	}, b, notify)
}
