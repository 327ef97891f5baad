package memoize

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultStorePrefix           = "memo"
	defaultEntryTTL              = 5 * time.Minute
	defaultMemoryCleanupInterval = 10 * time.Minute
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "memoize-file")
}

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	Driver Driver

	// DefaultTTL is used when a write provides ttl <= 0.
	DefaultTTL time.Duration

	// MemoryCleanupInterval controls in-process expired-entry sweeps.
	MemoryCleanupInterval time.Duration

	// Prefix isolates this store's keys on shared engines (redis, sql,
	// dynamo, memcached, nats). Flush only touches keys under the prefix.
	Prefix string

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// FileDir controls where the file driver keeps entries.
	FileDir string

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue

	// NATSBucketTTL marks the bucket as owning expiry, skipping the
	// per-entry expiry envelope.
	NATSBucketTTL bool

	// SQLDriverName and SQLDSN are required when DriverSQL is used.
	// Supported driver names: pgx, mysql, sqlite.
	SQLDriverName string
	SQLDSN        string
	// SQLTable defaults to "memo_entries".
	SQLTable string

	// DynamoClient may be supplied directly; otherwise a client is built
	// from DynamoRegion/DynamoEndpoint when DriverDynamo is used.
	DynamoClient   DynamoAPI
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string

	// MemcachedAddresses lists memcached hosts for DriverMemcached.
	MemcachedAddresses []string
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultEntryTTL
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.Prefix == "" {
		c.Prefix = defaultStorePrefix
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = "memo_entries"
	}
	if c.DynamoTable == "" {
		c.DynamoTable = "memo_entries"
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = "us-east-1"
	}
	return c
}
