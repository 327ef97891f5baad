package memoize

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var dialMemcached = func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 3 * time.Second}
	return d.DialContext(ctx, network, addr)
}

// memcachedStore speaks the memcached text protocol directly.
//
// memcached cannot enumerate keys, so namespace invalidation uses a
// generation key: entry keys embed the namespace's current generation and
// Invalidate replaces it, orphaning old entries for the engine's own
// eviction to reclaim. Flush issues flush_all, which clears the entire
// engine, prefix or not.
type memcachedStore struct {
	addrs      []string
	defaultTTL time.Duration
	prefix     string
	pools      map[string]chan *memcachedConn
	rr         uint32
}

type memcachedConn struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

func newMemcachedStore(addrs []string, defaultTTL time.Duration, prefix string) Store {
	if len(addrs) == 0 {
		addrs = []string{"127.0.0.1:11211"}
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultEntryTTL
	}
	if prefix == "" {
		prefix = defaultStorePrefix
	}
	pools := make(map[string]chan *memcachedConn, len(addrs))
	for _, addr := range addrs {
		pools[addr] = make(chan *memcachedConn, 16)
	}
	return &memcachedStore{addrs: addrs, defaultTTL: defaultTTL, prefix: prefix, pools: pools}
}

func (s *memcachedStore) Driver() Driver { return DriverMemcached }

func (s *memcachedStore) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	gen, ok, err := s.generation(ctx, ns, false)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return s.getRaw(ctx, s.entryKey(ns, gen, key))
}

func (s *memcachedStore) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	gen, _, err := s.generation(ctx, ns, true)
	if err != nil {
		return err
	}
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return s.setRaw(ctx, s.entryKey(ns, gen, key), value, seconds)
}

func (s *memcachedStore) Delete(ctx context.Context, ns, key string) error {
	gen, ok, err := s.generation(ctx, ns, false)
	if err != nil || !ok {
		return err
	}
	return s.deleteRaw(ctx, s.entryKey(ns, gen, key))
}

// Invalidate starts a fresh generation for ns; every existing entry becomes
// unreachable immediately.
func (s *memcachedStore) Invalidate(ctx context.Context, ns string) error {
	next := strconv.FormatInt(time.Now().UnixNano(), 10)
	return s.setRaw(ctx, s.genKey(ns), []byte(next), 0)
}

func (s *memcachedStore) Flush(ctx context.Context) error {
	mc, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()
	if _, err := fmt.Fprintf(mc.conn, "flush_all\r\n"); err != nil {
		bad = true
		return err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return err
	}
	if !strings.HasPrefix(line, "OK") {
		bad = true
		return fmt.Errorf("memoize: memcached flush failed: %s", strings.TrimSpace(line))
	}
	return nil
}

// generation reads ns's current generation. With create set, a missing
// generation is initialized atomically via add so racing writers converge.
func (s *memcachedStore) generation(ctx context.Context, ns string, create bool) (string, bool, error) {
	genKey := s.genKey(ns)
	body, ok, err := s.getRaw(ctx, genKey)
	if err != nil {
		return "", false, err
	}
	if ok {
		return string(body), true, nil
	}
	if !create {
		return "", false, nil
	}
	next := strconv.FormatInt(time.Now().UnixNano(), 10)
	created, err := s.addRaw(ctx, genKey, []byte(next), 0)
	if err != nil {
		return "", false, err
	}
	if created {
		return next, true, nil
	}
	body, ok, err = s.getRaw(ctx, genKey)
	if err != nil || !ok {
		return "", false, fmt.Errorf("memoize: memcached generation lost for %q: %w", ns, err)
	}
	return string(body), true, nil
}

func (s *memcachedStore) getRaw(ctx context.Context, key string) ([]byte, bool, error) {
	mc, err := s.acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	bad := false
	defer func() { s.release(mc, bad) }()

	if _, err := fmt.Fprintf(mc.conn, "get %s\r\n", key); err != nil {
		bad = true
		return nil, false, err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return nil, false, err
	}
	if line == "END\r\n" {
		return nil, false, nil
	}

	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 4 || fields[0] != "VALUE" {
		return nil, false, fmt.Errorf("memoize: unexpected memcached response: %s", strings.TrimSpace(line))
	}
	size, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, false, fmt.Errorf("memoize: parse memcached value length: %w", err)
	}
	value := make([]byte, size)
	if _, err := io.ReadFull(mc.reader, value); err != nil {
		bad = true
		return nil, false, err
	}
	// consume trailing \r\n then END
	if _, err := mc.reader.ReadString('\n'); err != nil {
		bad = true
		return nil, false, err
	}
	if _, err := mc.reader.ReadString('\n'); err != nil {
		bad = true
		return nil, false, err
	}
	return value, true, nil
}

func (s *memcachedStore) setRaw(ctx context.Context, key string, value []byte, seconds int) error {
	line, err := s.storeCommand(ctx, "set", key, value, seconds)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "STORED") {
		return fmt.Errorf("memoize: memcached set failed: %s", strings.TrimSpace(line))
	}
	return nil
}

func (s *memcachedStore) addRaw(ctx context.Context, key string, value []byte, seconds int) (bool, error) {
	line, err := s.storeCommand(ctx, "add", key, value, seconds)
	if err != nil {
		return false, err
	}
	switch {
	case strings.HasPrefix(line, "STORED"):
		return true, nil
	case strings.HasPrefix(line, "NOT_STORED"):
		return false, nil
	default:
		return false, fmt.Errorf("memoize: memcached add failed: %s", strings.TrimSpace(line))
	}
}

func (s *memcachedStore) storeCommand(ctx context.Context, verb, key string, value []byte, seconds int) (string, error) {
	mc, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	bad := false
	defer func() { s.release(mc, bad) }()

	if _, err := fmt.Fprintf(mc.conn, "%s %s 0 %d %d\r\n", verb, key, seconds, len(value)); err != nil {
		bad = true
		return "", err
	}
	if _, err := mc.conn.Write(value); err != nil {
		bad = true
		return "", err
	}
	if _, err := mc.conn.Write([]byte("\r\n")); err != nil {
		bad = true
		return "", err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return "", err
	}
	if strings.HasPrefix(line, "ERROR") || strings.HasPrefix(line, "CLIENT_ERROR") || strings.HasPrefix(line, "SERVER_ERROR") {
		bad = true
	}
	return line, nil
}

func (s *memcachedStore) deleteRaw(ctx context.Context, key string) error {
	mc, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()
	if _, err := fmt.Fprintf(mc.conn, "delete %s\r\n", key); err != nil {
		bad = true
		return err
	}
	if _, err := mc.reader.ReadString('\n'); err != nil {
		bad = true
		return err
	}
	return nil
}

func (s *memcachedStore) acquire(ctx context.Context) (*memcachedConn, error) {
	if len(s.addrs) == 0 {
		return nil, errors.New("memoize: memcached has no addresses configured")
	}
	var errs bytes.Buffer
	start := int(atomic.AddUint32(&s.rr, 1)-1) % len(s.addrs)
	for i := 0; i < len(s.addrs); i++ {
		addr := s.addrs[(start+i)%len(s.addrs)]
		if pool, ok := s.pools[addr]; ok {
			select {
			case mc := <-pool:
				if mc != nil {
					return mc, nil
				}
			default:
			}
		}
		conn, err := dialMemcached(ctx, "tcp", addr)
		if err == nil {
			return &memcachedConn{
				addr:   addr,
				conn:   conn,
				reader: bufio.NewReader(conn),
			}, nil
		}
		fmt.Fprintf(&errs, "%s: %v; ", addr, err)
	}
	return nil, fmt.Errorf("memoize: memcached dial failed: %s", errs.String())
}

func (s *memcachedStore) release(mc *memcachedConn, bad bool) {
	if mc == nil || mc.conn == nil {
		return
	}
	if bad {
		_ = mc.conn.Close()
		return
	}
	pool, ok := s.pools[mc.addr]
	if !ok {
		_ = mc.conn.Close()
		return
	}
	select {
	case pool <- mc:
	default:
		_ = mc.conn.Close()
	}
}

// Segments are hashed the way the file store hashes path segments: the text
// protocol rejects whitespace and control bytes, and caps keys at 250 bytes,
// so namespaces and keys cannot flow into the command line verbatim.
func (s *memcachedStore) genKey(ns string) string {
	return s.prefix + ":" + hashSegment(ns, 16) + "!gen"
}

func (s *memcachedStore) entryKey(ns, gen, key string) string {
	return s.prefix + ":" + hashSegment(ns, 16) + ":" + gen + ":" + hashSegment(key, 32)
}
