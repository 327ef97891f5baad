package memoize

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a key has no entry in its namespace.
// It is returned by Scoped.Lookup; Store.Get reports absence via its ok flag.
var ErrNotFound = errors.New("memoize: entry not found")

// Store is the key-value contract memoized results are written to.
//
// Every operation is scoped to a namespace, normally the stable name of one
// wrapped function, so two functions sharing an engine cannot collide even
// when their key functions produce the same raw key. Namespaces must not
// contain ':' and two functions must never share one.
//
// Implementations must document whether they are safe for concurrent use.
// All stores in this package are.
type Store interface {
	Driver() Driver

	// Get returns the entry for key in ns, reporting absence via ok.
	Get(ctx context.Context, ns, key string) ([]byte, bool, error)

	// Set writes value under (ns, key), overwriting unconditionally.
	// A ttl <= 0 falls back to the store's default.
	Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error

	// Delete removes a single entry. Missing entries are not an error.
	Delete(ctx context.Context, ns, key string) error

	// Invalidate removes every entry written under ns, leaving other
	// namespaces untouched.
	Invalidate(ctx context.Context, ns string) error

	// Flush removes every entry across all namespaces in this store's scope.
	Flush(ctx context.Context) error
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	return clone
}
