package authsync

import "context"

type stateContextKey struct{}

// WithState attaches s to ctx. The guard middleware uses it to hand the
// state it decided on to the rendered handler.
func WithState(ctx context.Context, s State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, s)
}

// StateFromContext returns the State attached by WithState.
func StateFromContext(ctx context.Context) (State, bool) {
	if ctx == nil {
		return State{}, false
	}
	s, ok := ctx.Value(stateContextKey{}).(State)
	return s, ok
}
