// Package sqlitebackend stores the key-value store in a single SQLite table.
package sqlitebackend

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var _ storage.Backend = (*Backend)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

type Backend struct {
	pool *sqlitex.Pool
	path string
}

// Open creates or opens the database at path and ensures the kv table exists.
func Open(path string) (*Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlitebackend: path is required")
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: opening %s: %w", path, err)
	}
	return &Backend{pool: pool, path: path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitebackend: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitebackend: schema: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	if err := b.pool.Close(); err != nil {
		return fmt.Errorf("sqlitebackend: closing %s: %w", b.path, err)
	}
	return nil
}

func (b *Backend) withConn(fn func(conn *sqlite.Conn) error) error {
	conn, err := b.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("sqlitebackend: take: %w", err)
	}
	defer b.pool.Put(conn)
	return fn(conn)
}

func (b *Backend) Get(key string) ([]byte, error) {
	var (
		value []byte
		found bool
	)
	err := b.withConn(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM kv WHERE key = ?", &sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, value)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: get %s: %w", key, err)
	}
	if !found {
		return nil, apperrors.ErrNotFound
	}
	return value, nil
}

func (b *Backend) Set(key string, value []byte) error {
	err := b.withConn(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			&sqlitex.ExecOptions{Args: []any{key, value}})
	})
	if err != nil {
		return fmt.Errorf("sqlitebackend: set %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(key string) error {
	err := b.withConn(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM kv WHERE key = ?", &sqlitex.ExecOptions{Args: []any{key}})
	})
	if err != nil {
		return fmt.Errorf("sqlitebackend: delete %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Keys(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := b.withConn(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key", &sqlitex.ExecOptions{
			Args: []any{prefix, prefix},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				keys = append(keys, stmt.ColumnText(0))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: keys: %w", err)
	}
	return keys, nil
}
