package transport

import (
	"context"
	"time"
)

// retryPolicy retries an operation a fixed number of times with a
// constant delay. Only reads go through it; writes execute exactly once.
type retryPolicy struct {
	// maxAttempts is the total number of attempts, including the first.
	maxAttempts int

	// delay is the fixed wait between attempts.
	delay time.Duration

	// retryIf decides whether an error warrants another attempt.
	retryIf func(error) bool

	// onRetry is called before each retry attempt.
	onRetry func(attempt int, err error)
}

func (p retryPolicy) execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.retryIf(err) {
			return err
		}
		if attempt >= p.maxAttempts {
			break
		}

		if p.onRetry != nil {
			p.onRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return classifyTransport(ctx.Err())
		case <-time.After(p.delay):
		}
	}

	return lastErr
}
