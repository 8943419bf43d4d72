package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// DefaultSQLiteTable is used when OpenSQLite is given an empty table name.
const DefaultSQLiteTable = "cache"

const sqliteBusyTimeout = 5 * time.Second

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite is a Store backed by a SQLite database file. Several processes can
// share one file; SQLite serializes the writes.
type SQLite struct {
	db    *sql.DB
	table string

	fetchSQL        string
	fetchNoValueSQL string
	upsertSQL       string
	touchSQL        string
	deleteSQL       string
	sweepSQL        string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path. An empty path
// or ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, table string) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}
	if table == "" {
		table = DefaultSQLiteTable
	}
	if !tableName.MatchString(table) {
		return nil, errors.Newf("invalid sqlite table name %q", table)
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	s := &SQLite{db: db, table: table}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteDSN adds the connection pragmas to path. They have to travel in the
// DSN so that every pooled connection gets them, not just the first.
// busy_timeout makes a writer wait for the lock held by another connection or
// process instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(" + strconv.Itoa(int(sqliteBusyTimeout/time.Millisecond)) + ")" +
		"&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
}

func (s *SQLite) init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BLOB,
			expires_at INTEGER,
			absolute_expiration INTEGER,
			sliding_seconds REAL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires_at ON %s(expires_at)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	s.fetchSQL = fmt.Sprintf(`SELECT value, expires_at, absolute_expiration, sliding_seconds FROM %s WHERE key = ?`, s.table)
	s.fetchNoValueSQL = fmt.Sprintf(`SELECT NULL, expires_at, absolute_expiration, sliding_seconds FROM %s WHERE key = ?`, s.table)
	s.upsertSQL = fmt.Sprintf(`INSERT INTO %s (key, value, expires_at, absolute_expiration, sliding_seconds) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at,
		absolute_expiration = excluded.absolute_expiration, sliding_seconds = excluded.sliding_seconds`, s.table)
	s.touchSQL = fmt.Sprintf(`UPDATE %s SET expires_at = ? WHERE key = ? AND expires_at IS NOT NULL AND absolute_expiration IS ?`, s.table)
	s.deleteSQL = fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table)
	s.sweepSQL = fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= ?`, s.table)
	return nil
}

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func (s *SQLite) Fetch(ctx context.Context, key string, includeValue bool) (*Entry, error) {
	query := s.fetchNoValueSQL
	if includeValue {
		query = s.fetchSQL
	}
	var (
		value    []byte
		expires  sql.NullInt64
		absolute sql.NullInt64
		sliding  sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expires, &absolute, &sliding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Key:                key,
		ExpiresAt:          fromNanos(expires),
		AbsoluteExpiration: fromNanos(absolute),
	}
	if includeValue {
		if value == nil {
			value = []byte{}
		}
		e.Value = value
	}
	if sliding.Valid {
		e.SlidingExpiration = durationOf(&sliding.Float64)
	}
	return e, nil
}

func (s *SQLite) Upsert(ctx context.Context, e Entry) error {
	var sliding sql.NullFloat64
	if e.SlidingExpiration != nil {
		sliding = sql.NullFloat64{Float64: e.SlidingExpiration.Seconds(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.upsertSQL, e.Key, e.Value, nanos(e.ExpiresAt), nanos(e.AbsoluteExpiration), sliding)
	return err
}

func (s *SQLite) TouchExpiry(ctx context.Context, key string, expiresAt time.Time, absolute *time.Time) error {
	_, err := s.db.ExecContext(ctx, s.touchSQL, expiresAt.UnixNano(), key, nanos(absolute))
	return err
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.deleteSQL, key)
	return err
}

func (s *SQLite) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.sweepSQL, now.UnixNano())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
