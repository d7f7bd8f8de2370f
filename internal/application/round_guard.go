package application

import "context"

// RoundGuard is consulted by every agent before each model round of a
// turn, nested specialist rounds included. A non-nil error stops the
// agent before the request is sent.
type RoundGuard interface {
	AllowRound(agent string) error
}

type roundGuardKey struct{}

// WithRoundGuard returns a context whose agents consult g. A guard that
// must also respect an enclosing one should obtain it with
// RoundGuardFrom and delegate to it.
func WithRoundGuard(ctx context.Context, g RoundGuard) context.Context {
	return context.WithValue(ctx, roundGuardKey{}, g)
}

// RoundGuardFrom returns the guard installed in ctx, or nil.
func RoundGuardFrom(ctx context.Context) RoundGuard {
	g, _ := ctx.Value(roundGuardKey{}).(RoundGuard)
	return g
}
