package memoize

import (
	"context"
	"time"
)

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	inner  Store
	getErr error
	setErr error
	invErr error
}

func (s *failingStore) Driver() Driver { return s.inner.Driver() }

func (s *failingStore) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	return s.inner.Get(ctx, ns, key)
}

func (s *failingStore) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.inner.Set(ctx, ns, key, value, ttl)
}

func (s *failingStore) Delete(ctx context.Context, ns, key string) error {
	return s.inner.Delete(ctx, ns, key)
}

func (s *failingStore) Invalidate(ctx context.Context, ns string) error {
	if s.invErr != nil {
		return s.invErr
	}
	return s.inner.Invalidate(ctx, ns)
}

func (s *failingStore) Flush(ctx context.Context) error { return s.inner.Flush(ctx) }

// recordingStore wraps a Store and remembers the arguments of the last Set.
type recordingStore struct {
	inner   Store
	lastNS  string
	lastKey string
	lastTTL time.Duration
	gets    int
	sets    int
}

func (s *recordingStore) Driver() Driver { return s.inner.Driver() }

func (s *recordingStore) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	s.gets++
	return s.inner.Get(ctx, ns, key)
}

func (s *recordingStore) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	s.sets++
	s.lastNS, s.lastKey, s.lastTTL = ns, key, ttl
	return s.inner.Set(ctx, ns, key, value, ttl)
}

func (s *recordingStore) Delete(ctx context.Context, ns, key string) error {
	return s.inner.Delete(ctx, ns, key)
}

func (s *recordingStore) Invalidate(ctx context.Context, ns string) error {
	return s.inner.Invalidate(ctx, ns)
}

func (s *recordingStore) Flush(ctx context.Context) error { return s.inner.Flush(ctx) }

func mustKeyOf(parts ...any) Key {
	key, err := KeyOf(parts...)
	if err != nil {
		panic(err)
	}
	return key
}
