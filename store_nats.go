package memoize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const natsEnvelopeMarker = "memo-v1"

// NATSKeyValue captures the subset of nats.KeyValue used by the store.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

type natsStore struct {
	kv         NATSKeyValue
	defaultTTL time.Duration
	prefix     string
	bucketTTL  bool
}

// natsEnvelope carries per-entry expiry for buckets without a TTL of their
// own. ExpiresAt is unix millis; zero means the bucket owns expiry.
type natsEnvelope struct {
	Marker    string `json:"m"`
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"ea"`
}

func newNATSStore(kv NATSKeyValue, defaultTTL time.Duration, prefix string, bucketTTL bool) Store {
	if defaultTTL <= 0 {
		defaultTTL = defaultEntryTTL
	}
	if prefix == "" {
		prefix = defaultStorePrefix
	}
	return &natsStore{
		kv:         kv,
		defaultTTL: defaultTTL,
		prefix:     natsSegment(prefix),
		bucketTTL:  bucketTTL,
	}
}

func (s *natsStore) Driver() Driver { return DriverNATS }

func (s *natsStore) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errors.New("memoize: nats key-value unavailable")
	}
	entryKey := s.entryKey(ns, key)
	entry, err := s.kv.Get(entryKey)
	if isNATSMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return nil, false, nil
	}
	if s.bucketTTL {
		return cloneBytes(entry.Value()), true, nil
	}
	envelope, wrapped, err := decodeNATSEnvelope(entry.Value())
	if err != nil {
		return nil, false, err
	}
	if wrapped {
		if envelope.ExpiresAt > 0 && time.Now().UnixMilli() > envelope.ExpiresAt {
			_ = s.kv.Purge(entryKey)
			return nil, false, nil
		}
		return cloneBytes(envelope.Value), true, nil
	}
	return cloneBytes(entry.Value()), true, nil
}

func (s *natsStore) Set(_ context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if s.kv == nil {
		return errors.New("memoize: nats key-value unavailable")
	}
	body := cloneBytes(value)
	if !s.bucketTTL {
		if ttl <= 0 {
			ttl = s.defaultTTL
		}
		encoded, err := json.Marshal(natsEnvelope{
			Marker:    natsEnvelopeMarker,
			Value:     value,
			ExpiresAt: time.Now().Add(ttl).UnixMilli(),
		})
		if err != nil {
			return err
		}
		body = encoded
	}
	_, err := s.kv.Put(s.entryKey(ns, key), body)
	return err
}

func (s *natsStore) Delete(_ context.Context, ns, key string) error {
	if s.kv == nil {
		return errors.New("memoize: nats key-value unavailable")
	}
	err := s.kv.Purge(s.entryKey(ns, key))
	if isNATSMiss(err) {
		return nil
	}
	return err
}

func (s *natsStore) Invalidate(ctx context.Context, ns string) error {
	return s.purgeMatching(ctx, s.prefix+"."+natsSegment(ns)+".")
}

func (s *natsStore) Flush(ctx context.Context) error {
	return s.purgeMatching(ctx, s.prefix+".")
}

func (s *natsStore) purgeMatching(_ context.Context, prefix string) error {
	if s.kv == nil {
		return errors.New("memoize: nats key-value unavailable")
	}
	lister, err := s.kv.ListKeys()
	if err != nil {
		if isNATSMiss(err) {
			return nil
		}
		return err
	}
	defer lister.Stop()
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return err
		}
	}
	return nil
}

func (s *natsStore) entryKey(ns, key string) string {
	return s.prefix + "." + natsSegment(ns) + "." + natsSegment(key)
}

// natsSegment maps an arbitrary identifier onto the KV key alphabet.
// The encoding is injective, so distinct namespaces and keys never
// collide on the bucket.
func natsSegment(value string) string {
	if value == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

func decodeNATSEnvelope(body []byte) (natsEnvelope, bool, error) {
	var envelope natsEnvelope
	if len(body) == 0 || body[0] != '{' {
		return envelope, false, nil
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return natsEnvelope{}, false, nil
	}
	if envelope.Marker != natsEnvelopeMarker {
		return natsEnvelope{}, false, nil
	}
	return envelope, true, nil
}

func isNATSMiss(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, nats.ErrKeyNotFound) ||
		errors.Is(err, nats.ErrKeyDeleted) ||
		errors.Is(err, nats.ErrNoKeysFound)
}
