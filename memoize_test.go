package memoize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSelectorRoutesFunctionsToSeparateStores(t *testing.T) {
	ctx := context.Background()
	shared := newMemoryStore(0, 0)
	private := newMemoryStore(0, 0)

	// Route one function to its own store, everything else to the shared one.
	m := NewWithSelector(SelectorFunc(func(name string) Store {
		if strings.HasSuffix(name, ".Pow") {
			return private
		}
		return shared
	}))

	pow := Wrap2(m, "math.Pow", intPairKey, func(_ context.Context, a, b int) (int, error) {
		result := 1
		for i := 0; i < b; i++ {
			result *= a
		}
		return result, nil
	})
	add := Wrap2(m, "math.Add", intPairKey, func(_ context.Context, a, b int) (int, error) {
		return a + b, nil
	})

	if _, err := pow(ctx, 3, 2); err != nil {
		t.Fatalf("pow failed: %v", err)
	}
	if _, err := add(ctx, 3, 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	sharedStats := shared.(StatsProvider).Stats()
	privateStats := private.(StatsProvider).Stats()
	if privateStats["math.Pow"] != 1 || len(privateStats) != 1 {
		t.Fatalf("expected pow entry only in private store, got %v", privateStats)
	}
	if sharedStats["math.Add"] != 1 || sharedStats["math.Pow"] != 0 {
		t.Fatalf("expected add entry only in shared store, got %v", sharedStats)
	}
}

func TestSelectorConsultedOnEveryCall(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(0, 0)

	enabled := true
	m := NewWithSelector(SelectorFunc(func(string) Store {
		if !enabled {
			return nil
		}
		return store
	}))

	calls := 0
	fn := Wrap(m, "svc.Toggle", func(n int) (Key, error) { return KeyOf(n) },
		func(_ context.Context, n int) (int, error) {
			calls++
			return n, nil
		})

	if _, err := fn(ctx, 1); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if _, err := fn(ctx, 1); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected caching while enabled, got %d calls", calls)
	}

	// Policy change takes effect immediately: no caching, body every call.
	enabled = false
	if _, err := fn(ctx, 1); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if _, err := fn(ctx, 1); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected body on every call after disable, got %d", calls)
	}
}

func TestInvalidateUnknownNameIsNoOpWhenDisabled(t *testing.T) {
	m := NewWithSelector(Fixed(nil))
	if err := m.Invalidate(context.Background(), "svc.Anything"); err != nil {
		t.Fatalf("expected nil-store invalidate to be a no-op, got %v", err)
	}
	if err := m.InvalidateAll(context.Background()); err != nil {
		t.Fatalf("expected nil-store invalidate all to be a no-op, got %v", err)
	}
}

func TestInvalidateErrorPropagates(t *testing.T) {
	invErr := errors.New("scan down")
	m := New(&failingStore{inner: newMemoryStore(0, 0), invErr: invErr})
	if err := m.Invalidate(context.Background(), "svc.X"); !errors.Is(err, invErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestScopeReturnsNamespacedAdapter(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(0, 0)
	m := New(store)

	scope := m.Scope("svc.Fn")
	if scope == nil {
		t.Fatalf("expected adapter for enabled function")
	}
	if scope.Namespace() != "svc.Fn" {
		t.Fatalf("unexpected namespace %q", scope.Namespace())
	}
	if err := scope.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "svc.Fn", "k")
	if err != nil || !ok || string(body) != "v" {
		t.Fatalf("expected write to land in namespace, ok=%v err=%v", ok, err)
	}
}

func TestScopeNilWhenDisabled(t *testing.T) {
	m := NewWithSelector(Fixed(nil))
	if scope := m.Scope("svc.Fn"); scope != nil {
		t.Fatalf("expected nil adapter when caching disabled")
	}
}

func TestNewWithSelectorNilDisablesCaching(t *testing.T) {
	ctx := context.Background()
	m := NewWithSelector(nil)

	calls := 0
	fn := Wrap(m, "svc.Fn", func(n int) (Key, error) { return KeyOf(n) },
		func(_ context.Context, n int) (int, error) {
			calls++
			return n, nil
		})
	if _, err := fn(ctx, 1); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if _, err := fn(ctx, 1); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected no caching with nil selector, got %d calls", calls)
	}
}
