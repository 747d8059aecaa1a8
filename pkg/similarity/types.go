package similarity

import "context"

// Provider computes a semantic similarity in [0,1] between two texts.
// Implementations may call remote models; callers own retry policy.
type Provider interface {
	Compare(ctx context.Context, a, b string) (float64, error)
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context, a, b string) (float64, error)

// Compare implements Provider.
func (f Func) Compare(ctx context.Context, a, b string) (float64, error) {
	return f(ctx, a, b)
}
