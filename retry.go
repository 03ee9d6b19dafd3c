package aegis

import (
	"context"
	"math"
	"sync"
	"time"
)

// maxRetryDelay caps computed backoff delays. A provider's Retry-After is honored
// even when it is longer.
const maxRetryDelay = 30 * time.Second

// Retry calls operation until it succeeds, returns an error that is not
// retryable, or retries is exhausted. The delay grows linearly: 1s, 2s, 3s...
// RateLimited failures wait twice as long, or the provider's Retry-After if that
// is longer.
func Retry(ctx context.Context, retries int, operation func() error) error {
	return retry(ctx, retries, operation, func(attempt int) time.Duration {
		return time.Duration(attempt+1) * time.Second
	})
}

// RetryWithBackoff is Retry with exponential backoff starting at baseDelay.
func RetryWithBackoff(ctx context.Context, retries int, baseDelay time.Duration, operation func() error) error {
	return retry(ctx, retries, operation, func(attempt int) time.Duration {
		delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
		return min(delay, maxRetryDelay)
	})
}

func retry(ctx context.Context, retries int, operation func() error, backoff func(attempt int) time.Duration) error {
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return err
		}
		if attempt == retries {
			break
		}

		timer := time.NewTimer(retryDelay(err, backoff(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			e := NewNetworkError(providerOf(lastErr), ctx.Err())
			e.Message = "retry canceled"
			return e
		case <-timer.C:
		}
	}

	return lastErr
}

// retryDelay adjusts the computed delay for throttling.
func retryDelay(err error, delay time.Duration) time.Duration {
	e, ok := AsError(err)
	if !ok || e.Kind != KindRateLimited {
		return delay
	}
	delay = min(2*delay, maxRetryDelay)
	if e.RetryAfter > delay {
		return e.RetryAfter
	}
	return delay
}

func providerOf(err error) Provider {
	if e, ok := AsError(err); ok {
		return e.Provider
	}
	return 0
}

// ParallelResult is the outcome for one provider of SendParallel.
// Either Message or Error is populated, not both.
type ParallelResult struct {
	Provider Provider
	Message  Message
	Error    error
}

// SendParallel sends the same conversation to every provider concurrently and
// waits for all of them. Results are in the order of providers.
func SendParallel(ctx context.Context, client *Aegis, providers []Provider, conv []Message) []ParallelResult {
	results := make([]ParallelResult, len(providers))
	var wg sync.WaitGroup

	for i, p := range providers {
		wg.Add(1)
		go func(index int, p Provider) {
			defer wg.Done()

			msg, err := client.SendMessage(ctx, p, conv)
			results[index] = ParallelResult{
				Provider: p,
				Message:  msg,
				Error:    err,
			}
		}(i, p)
	}

	wg.Wait()
	return results
}
