package memoize

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

// fileRecordMagic guards against reading unrelated files; records are a
// 4-byte magic, 8-byte big-endian expiry (unix nanos), then the value.
var fileRecordMagic = []byte("MFR1")

type fileStore struct {
	dir        string
	defaultTTL time.Duration
}

func newFileStore(dir string, defaultTTL time.Duration) Store {
	if dir == "" {
		dir = defaultFileDir()
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultEntryTTL
	}
	_ = os.MkdirAll(dir, 0o755)
	return &fileStore{
		dir:        dir,
		defaultTTL: defaultTTL,
	}
}

func (s *fileStore) Driver() Driver { return DriverFile }

func (s *fileStore) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	path := s.path(ns, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	expiresAt, value, err := decodeFileRecord(data)
	if err != nil {
		_ = os.Remove(path)
		return nil, false, err
	}
	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *fileStore) Set(_ context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := time.Now().Add(ttl).UnixNano()

	tmp, err := createTempFile(s.dir, "memo-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	var header [12]byte
	copy(header[:4], fileRecordMagic)
	binary.BigEndian.PutUint64(header[4:], uint64(expiresAt))

	if _, err := tmp.Write(header[:]); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return renameFile(tmpPath, s.path(ns, key))
}

func (s *fileStore) Delete(_ context.Context, ns, key string) error {
	err := os.Remove(s.path(ns, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Invalidate(_ context.Context, ns string) error {
	prefix := hashSegment(ns, 16) + "-"
	return s.removeEntries(func(name string) bool {
		return strings.HasPrefix(name, prefix)
	})
}

func (s *fileStore) Flush(context.Context) error {
	return s.removeEntries(func(string) bool { return true })
}

func (s *fileStore) removeEntries(match func(name string) bool) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".entry") {
			continue
		}
		if !match(name) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// path places every namespace's entries under a shared flat directory with
// the namespace hash as filename prefix, so Invalidate is a prefix match.
func (s *fileStore) path(ns, key string) string {
	return filepath.Join(s.dir, hashSegment(ns, 16)+"-"+hashSegment(key, 32)+".entry")
}

func hashSegment(value string, hexLen int) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:hexLen]
}

func decodeFileRecord(data []byte) (int64, []byte, error) {
	if len(data) < 12 || !bytes.Equal(data[:4], fileRecordMagic) {
		return 0, nil, fmt.Errorf("memoize: malformed file record")
	}
	expiresAt := int64(binary.BigEndian.Uint64(data[4:12]))
	return expiresAt, cloneBytes(data[12:]), nil
}
