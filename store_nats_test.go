package memoize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestNATSStoreNilKeyValueErrors(t *testing.T) {
	store := newNATSStore(nil, 0, "", false)
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "svc.Fn", "k"); err == nil {
		t.Fatalf("expected get error when nats key-value is nil")
	}
	if err := store.Set(ctx, "svc.Fn", "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected set error when nats key-value is nil")
	}
	if err := store.Delete(ctx, "svc.Fn", "k"); err == nil {
		t.Fatalf("expected delete error when nats key-value is nil")
	}
	if err := store.Invalidate(ctx, "svc.Fn"); err == nil {
		t.Fatalf("expected invalidate error when nats key-value is nil")
	}
	if err := store.Flush(ctx); err == nil {
		t.Fatalf("expected flush error when nats key-value is nil")
	}
}

func TestNATSStoreOperationsWithStubKV(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, 100*time.Millisecond, "pfx", false)

	if err := store.Set(ctx, "svc.Fn", "alpha", []byte("one"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "svc.Fn", "alpha")
	if err != nil || !ok || string(body) != "one" {
		t.Fatalf("unexpected get result: ok=%v err=%v body=%s", ok, err, string(body))
	}

	if err := store.Delete(ctx, "svc.Fn", "alpha"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, "svc.Fn", "alpha"); err != nil || ok {
		t.Fatalf("expected alpha deleted")
	}
	// Deleting a missing key is a no-op.
	if err := store.Delete(ctx, "svc.Fn", "absent"); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
}

func TestNATSStoreExpiryAndDefaultTTL(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, 25*time.Millisecond, "pfx", false)

	if err := store.Set(ctx, "svc.Fn", "exp", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "svc.Fn", "exp"); err != nil || ok {
		t.Fatalf("expected key expired; ok=%v err=%v", ok, err)
	}
}

func TestNATSStoreBucketTTLModeStoresRawValues(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, 10*time.Millisecond, "pfx", true)

	if err := store.Set(ctx, "svc.Fn", "raw", []byte("value"), 5*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	entryKey := store.(*natsStore).entryKey("svc.Fn", "raw")
	entry, ok := kv.entries[entryKey]
	if !ok || string(entry.value) != "value" {
		t.Fatalf("expected raw payload in bucket, got %v", kv.entries)
	}
	body, ok, err := store.Get(ctx, "svc.Fn", "raw")
	if err != nil || !ok || string(body) != "value" {
		t.Fatalf("unexpected get result: ok=%v err=%v body=%q", ok, err, string(body))
	}
}

func TestNATSStoreReadsRawLegacyValue(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, time.Second, "pfx", false)

	// A value written before envelopes has no wrapper and is served as-is.
	entryKey := store.(*natsStore).entryKey("svc.Fn", "legacy")
	if _, err := kv.Put(entryKey, []byte("plain")); err != nil {
		t.Fatalf("seed raw value: %v", err)
	}
	got, ok, err := store.Get(ctx, "svc.Fn", "legacy")
	if err != nil || !ok || string(got) != "plain" {
		t.Fatalf("expected raw value read, ok=%v err=%v val=%q", ok, err, string(got))
	}
}

func TestNATSStoreEncodesKeySegments(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, time.Second, "pfx", false)

	if err := store.Set(ctx, "svc.Fn", "key with spaces", []byte("v"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	want := base64.RawURLEncoding.EncodeToString([]byte("pfx")) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("svc.Fn")) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("key with spaces"))
	for key := range kv.entries {
		if key != want {
			t.Fatalf("unexpected engine key %q, want %q", key, want)
		}
	}
	if _, ok, err := store.Get(ctx, "svc.Fn", "key with spaces"); err != nil || !ok {
		t.Fatalf("expected encoded round trip, ok=%v err=%v", ok, err)
	}
}

func TestNATSStoreDistinctNamespacesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, time.Second, "pfx", false)

	// "math.Pow" and "math_Pow" differ only in a rune outside the KV
	// alphabet; they must map to distinct engine keys.
	if err := store.Set(ctx, "math.Pow", "k", []byte("dot"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "math_Pow", "k", []byte("underscore"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "math.Pow", "k")
	if err != nil || !ok || string(got) != "dot" {
		t.Fatalf("namespace collided on write: ok=%v err=%v val=%q", ok, err, string(got))
	}
	got, ok, err = store.Get(ctx, "math_Pow", "k")
	if err != nil || !ok || string(got) != "underscore" {
		t.Fatalf("unexpected sibling value: ok=%v err=%v val=%q", ok, err, string(got))
	}

	if err := store.Invalidate(ctx, "math.Pow"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "math.Pow", "k"); ok {
		t.Fatalf("expected math.Pow cleared")
	}
	if _, ok, _ := store.Get(ctx, "math_Pow", "k"); !ok {
		t.Fatalf("expected math_Pow to survive math.Pow invalidation")
	}
}

func TestNATSStoreInvalidateAndFlushRespectPrefix(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, time.Second, "pfx", false)

	if err := store.Set(ctx, "svc.A", "k", []byte("1"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "svc.B", "k", []byte("2"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	otherKey := "other.app.keep"
	if _, err := kv.Put(otherKey, []byte("keep")); err != nil {
		t.Fatalf("put keep failed: %v", err)
	}

	if err := store.Invalidate(ctx, "svc.A"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "svc.A", "k"); ok {
		t.Fatalf("expected svc.A removed")
	}
	if _, ok, _ := store.Get(ctx, "svc.B", "k"); !ok {
		t.Fatalf("expected svc.B untouched")
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "svc.B", "k"); ok {
		t.Fatalf("expected flush to clear the prefix")
	}
	if _, ok := kv.entries[otherKey]; !ok {
		t.Fatalf("expected other prefix key retained")
	}
}

func TestNATSStoreErrorPropagation(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, time.Second, "pfx", false)

	kv.getErr = errors.New("get")
	if _, _, err := store.Get(ctx, "svc.Fn", "k"); err == nil {
		t.Fatalf("expected get error")
	}
	kv.getErr = nil

	kv.putErr = errors.New("put")
	if err := store.Set(ctx, "svc.Fn", "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected set error")
	}
	kv.putErr = nil

	kv.purgeErr = errors.New("purge")
	if err := store.Delete(ctx, "svc.Fn", "k"); err == nil {
		t.Fatalf("expected delete error")
	}
	kv.purgeErr = nil

	kv.listErr = errors.New("list")
	if err := store.Flush(ctx); err == nil {
		t.Fatalf("expected flush list error")
	}
}

func TestNATSEnvelopeDecode(t *testing.T) {
	body, err := json.Marshal(natsEnvelope{
		Marker:    natsEnvelopeMarker,
		Value:     []byte("v"),
		ExpiresAt: time.Now().Add(time.Minute).UnixMilli(),
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	envelope, wrapped, err := decodeNATSEnvelope(body)
	if err != nil || !wrapped || string(envelope.Value) != "v" {
		t.Fatalf("decode mismatch: wrapped=%v err=%v", wrapped, err)
	}

	// JSON without the marker is not an envelope.
	if _, wrapped, _ := decodeNATSEnvelope([]byte(`{"x":1}`)); wrapped {
		t.Fatalf("unmarked JSON treated as envelope")
	}
	if _, wrapped, _ := decodeNATSEnvelope([]byte("raw")); wrapped {
		t.Fatalf("raw bytes treated as envelope")
	}
}

type stubNATSKeyValue struct {
	bucket string
	rev    uint64

	entries map[string]*stubNATSKeyValueEntry

	getErr   error
	putErr   error
	purgeErr error
	listErr  error
}

func newStubNATSKeyValue(bucket string) *stubNATSKeyValue {
	return &stubNATSKeyValue{
		bucket:  bucket,
		entries: make(map[string]*stubNATSKeyValueEntry),
	}
}

func (s *stubNATSKeyValue) Get(key string) (nats.KeyValueEntry, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	if entry.op == nats.KeyValueDelete || entry.op == nats.KeyValuePurge {
		return nil, nats.ErrKeyDeleted
	}
	return entry.clone(), nil
}

func (s *stubNATSKeyValue) Put(key string, value []byte) (uint64, error) {
	if s.putErr != nil {
		return 0, s.putErr
	}
	s.rev++
	s.entries[key] = &stubNATSKeyValueEntry{
		bucket:   s.bucket,
		key:      key,
		value:    cloneBytes(value),
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValuePut,
	}
	return s.rev, nil
}

func (s *stubNATSKeyValue) Delete(key string, _ ...nats.DeleteOpt) error {
	s.rev++
	s.entries[key] = &stubNATSKeyValueEntry{
		bucket:   s.bucket,
		key:      key,
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValueDelete,
	}
	return nil
}

func (s *stubNATSKeyValue) Purge(key string, _ ...nats.DeleteOpt) error {
	if s.purgeErr != nil {
		return s.purgeErr
	}
	delete(s.entries, key)
	return nil
}

func (s *stubNATSKeyValue) ListKeys(_ ...nats.WatchOpt) (nats.KeyLister, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return newStubNATSKeyLister(keys), nil
}

type stubNATSKeyValueEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	delta    uint64
	op       nats.KeyValueOp
}

func (e *stubNATSKeyValueEntry) clone() *stubNATSKeyValueEntry {
	cp := *e
	cp.value = cloneBytes(e.value)
	return &cp
}

func (e *stubNATSKeyValueEntry) Bucket() string             { return e.bucket }
func (e *stubNATSKeyValueEntry) Key() string                { return e.key }
func (e *stubNATSKeyValueEntry) Value() []byte              { return cloneBytes(e.value) }
func (e *stubNATSKeyValueEntry) Revision() uint64           { return e.revision }
func (e *stubNATSKeyValueEntry) Created() time.Time         { return e.created }
func (e *stubNATSKeyValueEntry) Delta() uint64              { return e.delta }
func (e *stubNATSKeyValueEntry) Operation() nats.KeyValueOp { return e.op }

type stubNATSKeyLister struct {
	keysCh chan string
	errCh  chan error
}

func newStubNATSKeyLister(keys []string) *stubNATSKeyLister {
	keysCh := make(chan string, len(keys))
	errCh := make(chan error)
	for _, key := range keys {
		keysCh <- key
	}
	close(keysCh)
	close(errCh)
	return &stubNATSKeyLister{keysCh: keysCh, errCh: errCh}
}

func (l *stubNATSKeyLister) Keys() <-chan string { return l.keysCh }
func (l *stubNATSKeyLister) Error() <-chan error { return l.errCh }
func (l *stubNATSKeyLister) Stop() error         { return nil }
