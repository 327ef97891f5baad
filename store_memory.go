package memoize

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// StatsProvider is implemented by stores that can report how many live
// entries each namespace holds. The memory store implements it; tests use it
// to assert selector routing.
type StatsProvider interface {
	Stats() map[string]int
}

type memoryStore struct {
	cache      *gocache.Cache
	defaultTTL time.Duration
}

func newMemoryStore(defaultTTL, cleanupInterval time.Duration) Store {
	if defaultTTL <= 0 {
		defaultTTL = defaultEntryTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultMemoryCleanupInterval
	}
	return &memoryStore{
		cache:      gocache.New(defaultTTL, cleanupInterval),
		defaultTTL: defaultTTL,
	}
}

func (s *memoryStore) Driver() Driver { return DriverMemory }

func (s *memoryStore) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	item, ok := s.cache.Get(memoryKey(ns, key))
	if !ok {
		return nil, false, nil
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(body), true, nil
}

func (s *memoryStore) Set(_ context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.cache.Set(memoryKey(ns, key), cloneBytes(value), ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, ns, key string) error {
	s.cache.Delete(memoryKey(ns, key))
	return nil
}

func (s *memoryStore) Invalidate(_ context.Context, ns string) error {
	prefix := ns + ":"
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
	return nil
}

func (s *memoryStore) Flush(context.Context) error {
	s.cache.Flush()
	return nil
}

// Stats reports live entry counts per namespace.
func (s *memoryStore) Stats() map[string]int {
	out := make(map[string]int)
	for key := range s.cache.Items() {
		if i := strings.Index(key, ":"); i >= 0 {
			out[key[:i]]++
		}
	}
	return out
}

func memoryKey(ns, key string) string {
	return ns + ":" + key
}
