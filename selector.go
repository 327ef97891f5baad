package memoize

// Selector maps a wrapped function's stable name to the Store that holds its
// results. Returning nil disables caching for that function entirely: the
// wrapper calls through on every invocation.
//
// The selector runs on every call and its result is never cached, so a
// selector may change its routing at runtime. Implementations should be
// cheap and must be safe for concurrent use.
type Selector interface {
	StoreFor(name string) Store
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(name string) Store

// StoreFor implements Selector.
func (f SelectorFunc) StoreFor(name string) Store {
	if f == nil {
		return nil
	}
	return f(name)
}

// Fixed returns the default selector: every function maps to the one shared
// store. Passing nil yields a selector that disables caching everywhere.
func Fixed(store Store) Selector {
	return SelectorFunc(func(string) Store { return store })
}
