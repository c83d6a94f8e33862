package cache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a SQLite database. A file-backed store
// keeps cached values across process restarts.
type SQLiteStore struct {
	db         *sql.DB
	ctx        context.Context
	cancel     context.CancelFunc
	waitGroup  sync.WaitGroup
	once       sync.Once
	purgeEvery time.Duration
	now        func() time.Time
}

var (
	_ Store  = (*SQLiteStore)(nil)
	_ Lister = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database at path. If path is empty
// or ":memory:", a private in-memory database is used. Expired rows are
// purged every purgeEvery (one minute when zero) until Close.
func NewSQLiteStore(ctx context.Context, path string, purgeEvery time.Duration) (*SQLiteStore, error) {
	memory := path == "" || path == ":memory:"
	if memory {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %q", path)
	}
	if memory {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "init sqlite store")
		}
	}

	if purgeEvery <= 0 {
		purgeEvery = time.Minute
	}
	childCtx, cancel := context.WithCancel(ctx)
	s := &SQLiteStore{
		db:         db,
		ctx:        childCtx,
		cancel:     cancel,
		purgeEvery: purgeEvery,
		now:        time.Now,
	}
	s.waitGroup.Add(1)
	go s.run()
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		data      []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if expiresAt <= s.now().UnixMilli() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND expires_at = ?`, key, expiresAt)
		return "", false, nil
	}
	return string(data), true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	expiresAt := s.now().Add(time.Duration(ttlSeconds(ttl)) * time.Second).UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, []byte(value), expiresAt,
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// List pages through live keys in lexical order; the cursor is the last key
// of the previous page.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE key > ? AND substr(key, 1, length(?)) = ? AND expires_at > ? ORDER BY key LIMIT ?`,
		opts.Cursor, opts.Prefix, opts.Prefix, s.now().UnixMilli(), limit+1,
	)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()
	keys := make([]string, 0, limit)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return ListResult{}, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}
	if len(keys) <= limit {
		return ListResult{Keys: keys, Done: true}, nil
	}
	keys = keys[:limit]
	return ListResult{Keys: keys, Cursor: keys[len(keys)-1]}, nil
}

// Purge deletes every expired row and returns how many were removed.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close stops the purge loop and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		s.waitGroup.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) run() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(s.purgeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Purge(s.ctx)
		}
	}
}
