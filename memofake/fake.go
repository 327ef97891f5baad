// Package memofake provides a deterministic in-memory memoizer with
// assertion helpers, for testing code that depends on memoized functions
// without any external cache engine.
package memofake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/memoize"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet        Op = "get"
	OpSet        Op = "set"
	OpDelete     Op = "delete"
	OpInvalidate Op = "invalidate"
	OpFlush      Op = "flush"
)

// Fake exposes a memoizer backed by a counting in-memory store plus
// assertion helpers over the recorded operations.
type Fake struct {
	memoizer *memoize.Memoizer
	store    memoize.Store
	counts   map[Op]map[string]int
	mu       sync.Mutex
}

// New creates a Fake using an in-memory store.
func New() *Fake {
	f := &Fake{counts: make(map[Op]map[string]int)}
	counting := &countingStore{
		inner:   memoize.NewMemoryStore(context.Background()),
		onCount: f.record,
	}
	f.store = counting
	f.memoizer = memoize.New(counting)
	return f
}

// Memoizer returns the memoizer to inject into code under test.
func (f *Fake) Memoizer() *memoize.Memoizer { return f.memoizer }

// Store returns the counting store, for wiring custom selectors.
func (f *Fake) Store() memoize.Store { return f.store }

// Reset clears recorded counts. Cached entries are kept.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies op touched namespace ns the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, ns string, times int) {
	t.Helper()
	if got := f.Count(op, ns); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, ns, times, got)
	}
}

// AssertNotCalled ensures op never touched namespace ns.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, ns string) {
	t.Helper()
	if got := f.Count(op, ns); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, ns, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op in namespace ns.
func (f *Fake) Count(op Op, ns string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][ns]
}

// Total returns total calls for an op across namespaces.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, ns string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][ns]++
}

// countingStore wraps a Store to record calls per namespace.
type countingStore struct {
	inner   memoize.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() memoize.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	s.onCount(OpGet, ns)
	return s.inner.Get(ctx, ns, key)
}

func (s *countingStore) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	s.onCount(OpSet, ns)
	return s.inner.Set(ctx, ns, key, value, ttl)
}

func (s *countingStore) Delete(ctx context.Context, ns, key string) error {
	s.onCount(OpDelete, ns)
	return s.inner.Delete(ctx, ns, key)
}

func (s *countingStore) Invalidate(ctx context.Context, ns string) error {
	s.onCount(OpInvalidate, ns)
	return s.inner.Invalidate(ctx, ns)
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.onCount(OpFlush, "")
	return s.inner.Flush(ctx)
}
