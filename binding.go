package chordtest

import "context"

type ctxKey int

const (
	bindingKey ctxKey = iota
	originKey
)

// binding ties a goroutine's context to the scope whose pool it may spawn into. The test
// goroutine gets one from Enter; every worker derives its own once, when it starts.
type binding struct {
	scope  *Scope
	worker string // empty on the test goroutine
}

func bind(ctx context.Context, s *Scope, worker string) context.Context {
	return context.WithValue(ctx, bindingKey, binding{scope: s, worker: worker})
}

func bindingFrom(ctx context.Context) (binding, bool) {
	b, ok := ctx.Value(bindingKey).(binding)
	return b, ok
}

// Current returns the scope bound to ctx, if there is one and it has not exited yet.
func Current(ctx context.Context) (*Scope, bool) {
	b, ok := bindingFrom(ctx)
	if !ok || b.scope.hasExited() {
		return nil, false
	}
	return b.scope, true
}

// WorkerName returns the name of the worker goroutine running the task that ctx was given to,
// in the form "<scope>-<n>". It returns false on the test goroutine.
func WorkerName(ctx context.Context) (string, bool) {
	b, ok := bindingFrom(ctx)
	if !ok || b.worker == "" {
		return "", false
	}
	return b.worker, true
}

// withOrigin marks ctx as belonging to the task spawned at origin, so that tasks it spawns
// link their own origin to it.
func withOrigin(ctx context.Context, origin *StackTrace) context.Context {
	return context.WithValue(ctx, originKey, origin)
}

func originFrom(ctx context.Context) *StackTrace {
	st, _ := ctx.Value(originKey).(*StackTrace)
	return st
}
