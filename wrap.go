package memoize

import (
	"context"
	"encoding/json"
	"time"
)

// ValueCodec defines how wrapped results are encoded into store entries.
type ValueCodec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// JSONCodec is the default result encoding.
func JSONCodec[T any]() ValueCodec[T] {
	return ValueCodec[T]{
		Encode: func(v T) ([]byte, error) { return json.Marshal(v) },
		Decode: func(b []byte) (T, error) {
			var out T
			err := json.Unmarshal(b, &out)
			return out, err
		},
	}
}

// WrapOption adjusts how one wrapped function caches its results.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	ttl time.Duration
}

// WithEntryTTL sets the TTL for entries written by this wrapped function,
// overriding the memoizer's default.
func WithEntryTTL(ttl time.Duration) WrapOption {
	return func(cfg *wrapConfig) { cfg.ttl = ttl }
}

// Wrap memoizes a unary function under name.
//
// Per call: keyFn derives the cache key; Bypass calls through with no cache
// interaction; a nil store from the selector calls through likewise; a hit
// decodes and returns the stored result without running fn; a miss runs fn
// and, only on success, stores the encoded result. Errors from keyFn,
// decode, the store, or fn itself all propagate uncached.
//
// name must be stable and unique per function (module-qualified, e.g.
// "billing.Quote") and must not contain ':'.
func Wrap[A, R any](m *Memoizer, name string, keyFn KeyFunc[A], fn func(context.Context, A) (R, error), opts ...WrapOption) func(context.Context, A) (R, error) {
	return WrapWithCodec(m, name, keyFn, fn, JSONCodec[R](), opts...)
}

// WrapWithCodec is Wrap with a caller-supplied result encoding, for results
// that JSON cannot round-trip.
func WrapWithCodec[A, R any](m *Memoizer, name string, keyFn KeyFunc[A], fn func(context.Context, A) (R, error), codec ValueCodec[R], opts ...WrapOption) func(context.Context, A) (R, error) {
	cfg := newWrapConfig(opts)
	return func(ctx context.Context, arg A) (R, error) {
		var zero R
		key, err := keyFn(arg)
		if err != nil {
			return zero, err
		}
		return memoizedCall(ctx, m, name, key, cfg, codec, func(ctx context.Context) (R, error) {
			return fn(ctx, arg)
		})
	}
}

// Wrap0 memoizes a nullary function. Its result is stored under one constant
// key, so the body runs once per invalidation.
func Wrap0[R any](m *Memoizer, name string, fn func(context.Context) (R, error), opts ...WrapOption) func(context.Context) (R, error) {
	cfg := newWrapConfig(opts)
	codec := JSONCodec[R]()
	return func(ctx context.Context) (R, error) {
		return memoizedCall(ctx, m, name, RawKey("()"), cfg, codec, fn)
	}
}

// Wrap2 memoizes a binary function.
func Wrap2[A, B, R any](m *Memoizer, name string, keyFn func(A, B) (Key, error), fn func(context.Context, A, B) (R, error), opts ...WrapOption) func(context.Context, A, B) (R, error) {
	cfg := newWrapConfig(opts)
	codec := JSONCodec[R]()
	return func(ctx context.Context, a A, b B) (R, error) {
		var zero R
		key, err := keyFn(a, b)
		if err != nil {
			return zero, err
		}
		return memoizedCall(ctx, m, name, key, cfg, codec, func(ctx context.Context) (R, error) {
			return fn(ctx, a, b)
		})
	}
}

// Wrap3 memoizes a ternary function.
func Wrap3[A, B, C, R any](m *Memoizer, name string, keyFn func(A, B, C) (Key, error), fn func(context.Context, A, B, C) (R, error), opts ...WrapOption) func(context.Context, A, B, C) (R, error) {
	cfg := newWrapConfig(opts)
	codec := JSONCodec[R]()
	return func(ctx context.Context, a A, b B, c C) (R, error) {
		var zero R
		key, err := keyFn(a, b, c)
		if err != nil {
			return zero, err
		}
		return memoizedCall(ctx, m, name, key, cfg, codec, func(ctx context.Context) (R, error) {
			return fn(ctx, a, b, c)
		})
	}
}

func newWrapConfig(opts []WrapOption) wrapConfig {
	var cfg wrapConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// memoizedCall is the per-call algorithm shared by every Wrap arity.
func memoizedCall[R any](ctx context.Context, m *Memoizer, name string, key Key, cfg wrapConfig, codec ValueCodec[R], invoke func(context.Context) (R, error)) (R, error) {
	var zero R
	start := time.Now()

	if key.IsBypass() {
		out, err := invoke(ctx)
		m.observe(ctx, OpBypass, name, "", false, err, start, "")
		return out, err
	}

	store := m.selector.StoreFor(name)
	if store == nil {
		out, err := invoke(ctx)
		m.observe(ctx, OpDisabled, name, key.String(), false, err, start, "")
		return out, err
	}

	body, ok, err := store.Get(ctx, name, key.String())
	if err != nil {
		m.observe(ctx, OpCall, name, key.String(), false, err, start, store.Driver())
		return zero, err
	}
	if ok {
		out, err := codec.Decode(body)
		if err != nil {
			m.observe(ctx, OpCall, name, key.String(), false, err, start, store.Driver())
			return zero, err
		}
		m.observe(ctx, OpCall, name, key.String(), true, nil, start, store.Driver())
		return out, nil
	}

	out, err := invoke(ctx)
	if err != nil {
		m.observe(ctx, OpCall, name, key.String(), false, err, start, store.Driver())
		return zero, err
	}
	encoded, err := codec.Encode(out)
	if err != nil {
		m.observe(ctx, OpCall, name, key.String(), false, err, start, store.Driver())
		return zero, err
	}
	if err := store.Set(ctx, name, key.String(), encoded, m.resolveTTL(cfg.ttl)); err != nil {
		m.observe(ctx, OpCall, name, key.String(), false, err, start, store.Driver())
		return zero, err
	}
	m.observe(ctx, OpCall, name, key.String(), false, nil, start, store.Driver())
	return out, nil
}
