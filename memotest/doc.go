// Package memotest provides a reusable contract suite for memoize.Store
// implementations.
//
// Backend tests run the same assertions against their engine without
// importing root test helpers:
//
//	func TestRedisStoreContract(t *testing.T) {
//		client := newTestRedisClient(t)
//		store := memoize.NewRedisStore(context.Background(), client,
//			memoize.WithPrefix("test"))
//
//		// Namespace keys per test and tune TTL waits for backend
//		// semantics as needed.
//		memotest.RunStoreContract(t, store, memotest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
package memotest
