// Package memoize caches function results keyed by their arguments.
//
// A Memoizer routes each wrapped function, by its stable name, to a Store
// via a pluggable Selector. Wrap and its arity variants produce functions of
// identical shape that consult the store before executing: a hit returns the
// stored result without running the body, a miss runs the body and stores
// the result. Key derivation is owned by the caller through a KeyFunc, which
// may return Bypass to skip caching for a single call.
//
// A correctly configured wrapped function is referentially transparent
// except for possibly stale results after explicit invalidation. A
// misconfigured one (selector returns nil) degrades to calling the body
// every time, which is always correct, merely slower.
package memoize

import (
	"context"
	"time"
)

// Memoizer holds the store-selection policy shared by a set of wrapped
// functions. It is stateless per call; all cached data lives in the stores.
type Memoizer struct {
	selector   Selector
	defaultTTL time.Duration
	observer   Observer
}

// New creates a memoizer that routes every function to the one shared store.
func New(store Store) *Memoizer {
	return NewWithSelector(Fixed(store))
}

// NewWithTTL creates a memoizer with an explicit default entry TTL, applied
// whenever a wrapped function was not given one of its own.
func NewWithTTL(store Store, defaultTTL time.Duration) *Memoizer {
	m := NewWithSelector(Fixed(store))
	if defaultTTL > 0 {
		m.defaultTTL = defaultTTL
	}
	return m
}

// NewWithSelector creates a memoizer with a caller-supplied selection
// strategy. The selector is consulted by function name on every call.
func NewWithSelector(selector Selector) *Memoizer {
	if selector == nil {
		selector = Fixed(nil)
	}
	return &Memoizer{
		selector:   selector,
		defaultTTL: defaultEntryTTL,
	}
}

// WithObserver attaches an observer that receives an event per operation.
func (m *Memoizer) WithObserver(o Observer) *Memoizer {
	m.observer = o
	return m
}

// Selector returns the selection strategy in use.
func (m *Memoizer) Selector() Selector { return m.selector }

// Scope returns the namespaced adapter for name on whatever store the
// selector currently maps it to, or nil when caching is disabled for name.
func (m *Memoizer) Scope(name string) *Scoped {
	store := m.selector.StoreFor(name)
	if store == nil {
		return nil
	}
	return NewScoped(store, name)
}

// Invalidate removes every entry written under name without touching other
// functions' namespaces. It resolves the store through the selector, so it
// targets wherever name's entries currently live. A name the selector maps
// to nil is a no-op.
func (m *Memoizer) Invalidate(ctx context.Context, name string) error {
	start := time.Now()
	store := m.selector.StoreFor(name)
	if store == nil {
		m.observe(ctx, OpInvalidate, name, "", false, nil, start, "")
		return nil
	}
	err := store.Invalidate(ctx, name)
	m.observe(ctx, OpInvalidate, name, "", err == nil, err, start, store.Driver())
	return err
}

// InvalidateAll flushes the shared store: every entry for every function
// routed there is removed. Under the default Fixed selector that is the
// whole cache. A custom selector spanning several stores should flush each
// store directly instead.
func (m *Memoizer) InvalidateAll(ctx context.Context) error {
	start := time.Now()
	store := m.selector.StoreFor("")
	if store == nil {
		m.observe(ctx, OpInvalidateAll, "", "", false, nil, start, "")
		return nil
	}
	err := store.Flush(ctx)
	m.observe(ctx, OpInvalidateAll, "", "", err == nil, err, start, store.Driver())
	return err
}

func (m *Memoizer) resolveTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return m.defaultTTL
}

func (m *Memoizer) observe(ctx context.Context, op Op, name, key string, hit bool, err error, start time.Time, driver Driver) {
	if m.observer == nil {
		return
	}
	m.observer.OnMemoOp(ctx, op, name, key, hit, err, time.Since(start), driver)
}
