package memoize

import (
	"context"
	"time"
)

// Scoped binds a Store to one namespace so callers work with raw keys.
// It is the adapter the wrapper uses internally; it is exported for code
// that wants direct access to one function's slice of a store.
type Scoped struct {
	store Store
	ns    string
}

// NewScoped scopes store to ns.
func NewScoped(store Store, ns string) *Scoped {
	return &Scoped{store: store, ns: ns}
}

// Namespace returns the namespace this adapter is bound to.
func (s *Scoped) Namespace() string { return s.ns }

// Lookup returns the entry for key or ErrNotFound when absent.
func (s *Scoped) Lookup(ctx context.Context, key string) ([]byte, error) {
	body, ok, err := s.store.Get(ctx, s.ns, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return body, nil
}

// Get returns the entry for key, reporting absence via ok instead of an
// error. It never fails on a plain miss.
func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.store.Get(ctx, s.ns, key)
}

// Set writes value under key, overwriting unconditionally.
func (s *Scoped) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.store.Set(ctx, s.ns, key, value, ttl)
}

// Delete removes a single entry.
func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.ns, key)
}

// Invalidate removes every entry in this adapter's namespace.
func (s *Scoped) Invalidate(ctx context.Context) error {
	return s.store.Invalidate(ctx, s.ns)
}
