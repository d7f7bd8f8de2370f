package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-maestro/internal/ports"
)

// RetryMiddleware repeats failed rounds up to maxRetries times with jittered
// exponential backoff between baseDelay and maxDelay. Permanent failures
// such as bad credentials or a rejected schema are returned at once.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return intercept(next, func(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
			var err error
			for attempt := 0; ; attempt++ {
				var resp *ports.ChatResponse
				if resp, err = next.DoRequest(ctx, req); err == nil {
					return resp, nil
				}
				if attempt == maxRetries || !shouldRetry(err) || ctx.Err() != nil {
					break
				}
				timer := time.NewTimer(backoff(attempt, baseDelay, maxDelay))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
			return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, err)
		})
	}
}

// shouldRetry treats unclassified errors as transient transport failures.
func shouldRetry(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.IsRetryable()
	}
	var llmErr *ports.LLMError
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return true
}

// backoff returns base doubled per attempt, jittered to [0.75, 1.25) of
// that, and capped at ceiling.
func backoff(attempt int, base, ceiling time.Duration) time.Duration {
	attempt = min(max(attempt, 0), 30)
	delay := base << attempt
	if delay <= 0 || delay > ceiling {
		delay = ceiling
	}
	// #nosec G404 - jitter does not need a secure source
	jittered := time.Duration(float64(delay) * (0.75 + rand.Float64()/2))
	return min(jittered, ceiling)
}
