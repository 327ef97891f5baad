package memoize

import (
	"context"
	"time"
)

// Op identifies a memoizer operation reported to an Observer.
type Op string

const (
	// OpCall is a memoized call that consulted a store; hit reports whether
	// the stored value was used instead of running the body.
	OpCall Op = "call"
	// OpBypass is a call whose key function returned Bypass.
	OpBypass Op = "bypass"
	// OpDisabled is a call whose function the selector mapped to no store.
	OpDisabled Op = "disabled"
	// OpInvalidate is a single-namespace invalidation.
	OpInvalidate Op = "invalidate"
	// OpInvalidateAll is a whole-store flush.
	OpInvalidateAll Op = "invalidate_all"
)

// Observer receives one event per memoizer operation after it completes.
// driver is empty for operations that never reached a store.
type Observer interface {
	OnMemoOp(ctx context.Context, op Op, name, key string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op Op, name, key string, hit bool, err error, dur time.Duration, driver Driver)

// OnMemoOp implements Observer.
func (f ObserverFunc) OnMemoOp(ctx context.Context, op Op, name, key string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, name, key, hit, err, dur, driver)
}
