package memoize

import (
	"context"
	"time"
)

// errorStore is returned when a driver fails to initialize; it preserves the
// driver identity while surfacing the construction error on every call.
type errorStore struct {
	driver Driver
	err    error
}

func (e *errorStore) Driver() Driver { return e.driver }

func (e *errorStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, e.err
}

func (e *errorStore) Set(context.Context, string, string, []byte, time.Duration) error {
	return e.err
}

func (e *errorStore) Delete(context.Context, string, string) error { return e.err }

func (e *errorStore) Invalidate(context.Context, string) error { return e.err }

func (e *errorStore) Flush(context.Context) error { return e.err }
