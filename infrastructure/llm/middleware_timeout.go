package llm

import (
	"context"
	"time"

	"github.com/ahrav/go-maestro/internal/ports"
)

// TimeoutMiddleware gives every chat round its own deadline. A shorter
// deadline already on the context still wins.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return intercept(next, func(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next.DoRequest(ctx, req)
		})
	}
}
