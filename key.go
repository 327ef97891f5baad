package memoize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Key is the derived cache key for one call, or the bypass marker.
//
// A Key is either a value produced by KeyOf/RawKey, or Bypass, which tells
// the wrapper to skip both lookup and storage for that call. The two states
// are distinguished by a tag rather than by object identity, so key
// functions have an explicit Key-or-bypass return type.
type Key struct {
	raw    string
	bypass bool
}

// Bypass is the distinguished "do not cache this call" value.
var Bypass = Key{bypass: true}

// IsBypass reports whether the key marks the call as uncacheable.
func (k Key) IsBypass() bool { return k.bypass }

// String returns the derived key text. It is empty for Bypass.
func (k Key) String() string { return k.raw }

// RawKey wraps an already-derived string as a Key.
// The caller owns uniqueness: two argument sets that must be cached
// separately have to produce different strings.
func RawKey(s string) Key { return Key{raw: s} }

// KeyOf derives a deterministic Key from the call arguments.
//
// Arguments are canonicalized (maps sorted by key) and JSON-encoded, then
// hashed with SHA-256. Same arguments always produce the same Key regardless
// of map iteration order. Values that cannot be JSON-encoded return an
// error, which the wrapper propagates uncached.
func KeyOf(parts ...any) (Key, error) {
	canonical, err := canonicalize(parts)
	if err != nil {
		return Key{}, fmt.Errorf("memoize: derive key: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return Key{raw: hex.EncodeToString(sum[:16])}, nil
}

// KeyFunc derives the cache key for one call of a wrapped unary function.
// Returning Bypass skips caching for that call; returning an error aborts
// the call before any cache interaction.
type KeyFunc[A any] func(arg A) (Key, error)

// canonicalize produces a deterministic JSON representation of v.
// Maps are sorted by key so encoding order never depends on iteration order.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')
		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}
		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, ']'), nil
}
