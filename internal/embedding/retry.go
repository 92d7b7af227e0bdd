package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"ragstack/internal/domain"
)

const maxRetries = 3

// retryDelay returns the backoff before the given attempt,
// exponential from 200ms capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// classify maps a transport error onto the provider error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	if errors.Is(err, domain.ErrProviderTimeout) || errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

// withRetry runs fn up to maxRetries+1 times, sleeping between
// attempts unless the context is done.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return classify(err)
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(retryDelay(attempt)):
		case <-ctx.Done():
			return classify(ctx.Err())
		}
	}
	return classify(err)
}
