package memoize

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type sqlStore struct {
	db             *sql.DB
	table          string
	driverName     string
	prefix         string
	defaultTTL     time.Duration
	getStmt        *sql.Stmt
	upsertStmt     *sql.Stmt
	deleteStmt     *sql.Stmt
	deleteLikeStmt *sql.Stmt
}

var sqlIdentRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSQLStore(cfg StoreConfig) (Store, error) {
	if cfg.SQLDriverName == "" || cfg.SQLDSN == "" {
		return nil, errors.New("memoize: sql driver requires driver name and dsn")
	}
	db, err := sql.Open(cfg.SQLDriverName, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	table := cfg.SQLTable
	if table == "" {
		table = "memo_entries"
	}
	if !sqlIdentRE.MatchString(table) {
		return nil, fmt.Errorf("memoize: invalid sql table name %q", table)
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	s := &sqlStore{
		db:         db,
		table:      table,
		driverName: cfg.SQLDriverName,
		prefix:     cfg.Prefix,
		defaultTTL: ttl,
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) Driver() Driver { return DriverSQL }

func (s *sqlStore) ensureSchema() error {
	var stmt string
	switch s.driverName {
	case "postgres", "pgx":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL,
			ea BIGINT NOT NULL
		);`, s.table)
	case "mysql":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(255) PRIMARY KEY,
			v LONGBLOB NOT NULL,
			ea BIGINT NOT NULL
		) ENGINE=InnoDB;`, s.table)
	default: // sqlite
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			ea INTEGER NOT NULL
		);`, s.table)
	}
	_, err := s.db.Exec(stmt)
	return err
}

func (s *sqlStore) prepareStatements() error {
	get, err := s.db.Prepare(s.rebind(fmt.Sprintf(`SELECT v, ea FROM %s WHERE k = ?`, s.table)))
	if err != nil {
		return err
	}
	var upsertSQL string
	switch s.driverName {
	case "postgres", "pgx":
		upsertSQL = fmt.Sprintf(`INSERT INTO %s (k, v, ea) VALUES (?, ?, ?)
			ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, ea = EXCLUDED.ea`, s.table)
	case "mysql":
		upsertSQL = fmt.Sprintf(`INSERT INTO %s (k, v, ea) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE v = VALUES(v), ea = VALUES(ea)`, s.table)
	default: // sqlite
		upsertSQL = fmt.Sprintf(`INSERT INTO %s (k, v, ea) VALUES (?, ?, ?)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v, ea = excluded.ea`, s.table)
	}
	upsert, err := s.db.Prepare(s.rebind(upsertSQL))
	if err != nil {
		get.Close()
		return err
	}
	del, err := s.db.Prepare(s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, s.table)))
	if err != nil {
		get.Close()
		upsert.Close()
		return err
	}
	// '|' as explicit escape char keeps the pattern portable across the
	// three dialects; backslash escaping differs between them.
	delLike, err := s.db.Prepare(s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE k LIKE ? ESCAPE '|'`, s.table)))
	if err != nil {
		get.Close()
		upsert.Close()
		del.Close()
		return err
	}
	s.getStmt = get
	s.upsertStmt = upsert
	s.deleteStmt = del
	s.deleteLikeStmt = delLike
	return nil
}

// rebind converts ? placeholders to $n for the postgres wire drivers.
func (s *sqlStore) rebind(query string) string {
	if s.driverName != "postgres" && s.driverName != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	var v []byte
	var exp int64
	err := s.getStmt.QueryRowContext(ctx, s.entryKey(ns, key)).Scan(&v, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Now().UnixMilli() > exp {
		_ = s.Delete(ctx, ns, key)
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (s *sqlStore) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := time.Now().Add(ttl).UnixMilli()
	_, err := s.upsertStmt.ExecContext(ctx, s.entryKey(ns, key), value, expiresAt)
	return err
}

func (s *sqlStore) Delete(ctx context.Context, ns, key string) error {
	_, err := s.deleteStmt.ExecContext(ctx, s.entryKey(ns, key))
	return err
}

func (s *sqlStore) Invalidate(ctx context.Context, ns string) error {
	pattern := escapeLike(s.prefix+":"+ns+":") + "%"
	_, err := s.deleteLikeStmt.ExecContext(ctx, pattern)
	return err
}

func (s *sqlStore) Flush(ctx context.Context) error {
	pattern := escapeLike(s.prefix+":") + "%"
	_, err := s.deleteLikeStmt.ExecContext(ctx, pattern)
	return err
}

func (s *sqlStore) entryKey(ns, key string) string {
	return s.prefix + ":" + ns + ":" + key
}

func escapeLike(value string) string {
	r := strings.NewReplacer("|", "||", "%", "|%", "_", "|_")
	return r.Replace(value)
}
