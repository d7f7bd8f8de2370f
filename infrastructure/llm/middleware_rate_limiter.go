package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-maestro/internal/ports"
)

// RateLimitMiddleware paces chat rounds with a token bucket of limit
// requests per second and the given burst. All clients wrapped by the
// returned middleware draw from the same bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return intercept(next, func(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
			return next.DoRequest(ctx, req)
		})
	}
}
