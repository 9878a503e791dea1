// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tracklet/tracklet/internal/debug"

	// Import SQLite driver
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool // Tracks whether Close() has been called
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	// Convert :memory: to a uniquely named shared in-memory database.
	// A bare ":memory:" gives every pooled connection its own empty
	// database; a named shared-cache URL keeps them on one database
	// without aliasing other in-memory stores in the same process.
	dbPath := path
	if path == ":memory:" {
		dbPath = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	// Ensure directory exists (skip for memory databases)
	if !strings.Contains(dbPath, "mode=memory") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency and a busy
	// timeout so parallel writers wait for locks instead of failing.
	// _time_format=sqlite enables automatic parsing of DATETIME columns.
	connStr := dbPath
	if strings.Contains(dbPath, "?") {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Convert to absolute path for consistency
	absPath := dbPath
	if !strings.Contains(dbPath, "mode=memory") {
		absPath, err = filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	debug.Logf("sqlite: opened %s\n", absPath)

	return &SQLiteStorage{
		db:     db,
		dbPath: absPath,
	}, nil
}

// inTransaction runs fn on a dedicated connection inside a BEGIN
// IMMEDIATE transaction, committing on success and rolling back on
// error. IMMEDIATE acquires the write lock up front, so a read-diff-
// write sequence cannot interleave with another writer.
//
// We use raw Exec instead of BeginTx because database/sql has no
// transaction modes and modernc.org/sqlite's BeginTx always runs
// DEFERRED.
func (s *SQLiteStorage) inTransaction(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup happens even if
	// ctx is canceled mid-transaction.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// beginImmediateWithRetry starts an IMMEDIATE transaction, backing off
// on SQLITE_BUSY. The busy_timeout pragma covers most contention; the
// retry handles the window where another IMMEDIATE holds the lock.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "busy") && !strings.Contains(err.Error(), "locked") {
			return err
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// derivePrefixFromPath derives the issue prefix from the database file
// path: ".tracklet/tk.db" -> "tk". Falls back to "tk" for odd names.
func derivePrefixFromPath(dbPath string) string {
	name := strings.TrimSuffix(filepath.Base(dbPath), ".db")
	prefix := strings.TrimSuffix(name, "-")
	if prefix == "" || strings.Contains(prefix, "?") {
		prefix = "tk"
	}
	return prefix
}

// issuePrefix returns the configured issue prefix, falling back to one
// derived from the database filename.
func (s *SQLiteStorage) issuePrefix(ctx context.Context, conn *sql.Conn) (string, error) {
	var prefix string
	err := conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, "issue_prefix").Scan(&prefix)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	if prefix == "" {
		return derivePrefixFromPath(s.dbPath), nil
	}
	return prefix, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

// IsClosed returns true if Close() has been called on this storage
func (s *SQLiteStorage) IsClosed() bool {
	return s.closed.Load()
}

// Path returns the absolute path to the database file
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// UnderlyingDB returns the underlying *sql.DB connection.
//
// Extensions may use it to create their own tables in the same
// database. Do not close it, do not change the configured PRAGMAs, and
// keep write transactions short: SQLite has a single-writer lock even
// in WAL mode. Direct reads bypass the soft-delete filter.
func (s *SQLiteStorage) UnderlyingDB() *sql.DB {
	return s.db
}

// CheckpointWAL checkpoints the WAL file to flush changes to the main
// database file. In WAL mode, writes land in the -wal file; callers
// watching the .db file's mtime need an explicit checkpoint.
func (s *SQLiteStorage) CheckpointWAL(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	return err
}
