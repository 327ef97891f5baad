package memoize

import (
	"context"
	"time"
)

// nullStore never holds anything: every lookup misses and every write is
// discarded, so functions routed to it execute on each call.
type nullStore struct{}

func newNullStore() Store { return &nullStore{} }

func (s *nullStore) Driver() Driver { return DriverNull }

func (s *nullStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *nullStore) Set(context.Context, string, string, []byte, time.Duration) error {
	return nil
}

func (s *nullStore) Delete(context.Context, string, string) error { return nil }

func (s *nullStore) Invalidate(context.Context, string) error { return nil }

func (s *nullStore) Flush(context.Context) error { return nil }
