package memotest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goforj/memoize"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName namespaces the suite's entries. Defaults to t.Name().
	CaseName string
	// NullSemantics enables relaxed expectations for the null store.
	NullSemantics bool
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipFlush disables the flush assertion for engines where it is
	// destructive beyond the store's own scope.
	SkipFlush bool
}

// RunStoreContract runs a backend-agnostic contract suite against store.
// It covers round-trips, misses, overwrite, deletion, namespace-scoped
// invalidation, flush, and TTL expiry.
func RunStoreContract(t *testing.T, store memoize.Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	ns := func(s string) string {
		return sanitize(caseName) + "_" + s
	}

	// Set/Get round-trip.
	if err := store.Set(ctx, ns("alpha"), "k1", []byte("value"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, ns("alpha"), "k1")
	if err != nil {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok || string(body) != "value" {
			t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
		}
		if !opts.SkipCloneCheck {
			body[0] = 'X'
			body2, ok2, err2 := store.Get(ctx, ns("alpha"), "k1")
			if err2 != nil || !ok2 || string(body2) != "value" {
				t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
			}
		}
	}

	// Miss on unknown key.
	if _, ok, err := store.Get(ctx, ns("alpha"), "absent"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	// Overwrite is unconditional.
	if !opts.NullSemantics {
		if err := store.Set(ctx, ns("alpha"), "k1", []byte("replaced"), time.Second); err != nil {
			t.Fatalf("overwrite failed: %v", err)
		}
		body, ok, err := store.Get(ctx, ns("alpha"), "k1")
		if err != nil || !ok || string(body) != "replaced" {
			t.Fatalf("expected overwritten value, got ok=%v body=%q err=%v", ok, string(body), err)
		}
	}

	// Delete removes one entry and tolerates repeats.
	if err := store.Set(ctx, ns("alpha"), "gone", []byte("v"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Delete(ctx, ns("alpha"), "gone"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, ns("alpha"), "gone"); err != nil || ok {
		t.Fatalf("expected miss after delete, got ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, ns("alpha"), "gone"); err != nil {
		t.Fatalf("repeated delete failed: %v", err)
	}

	// Invalidate clears one namespace and leaves others alone.
	if err := store.Set(ctx, ns("left"), "k", []byte("l"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, ns("right"), "k", []byte("r"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Invalidate(ctx, ns("left")); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, ns("left"), "k"); err != nil || ok {
		t.Fatalf("expected invalidated namespace to miss, got ok=%v err=%v", ok, err)
	}
	body, ok, err = store.Get(ctx, ns("right"), "k")
	if err != nil {
		t.Fatalf("get after invalidate failed: %v", err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else if !ok || string(body) != "r" {
		t.Fatalf("expected sibling namespace untouched, got ok=%v body=%q", ok, string(body))
	}

	// Flush clears everything in the store's scope.
	if !opts.SkipFlush {
		if err := store.Set(ctx, ns("flushed"), "k", []byte("v"), time.Second); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, ns("flushed"), "k"); err != nil || ok {
			t.Fatalf("expected miss after flush, got ok=%v err=%v", ok, err)
		}
	}

	// TTL expiry.
	if !opts.NullSemantics {
		if err := store.Set(ctx, ns("ttl"), "k", []byte("v"), ttl); err != nil {
			t.Fatalf("set ttl failed: %v", err)
		}
		if err := waitForMiss(ctx, store, ns("ttl"), "k", wait); err != nil {
			t.Fatalf("expected ttl expiry: %v", err)
		}
	}
}

func waitForMiss(ctx context.Context, store memoize.Store, ns, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait * 10)
	time.Sleep(wait)
	for {
		_, ok, err := store.Get(ctx, ns, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		time.Sleep(wait / 4)
	}
}

// sanitize maps a test name onto characters every backend accepts, with no
// ':' so it cannot collide with the namespacing separator.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
