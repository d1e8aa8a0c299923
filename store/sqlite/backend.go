// Package sqlite is a SQLite backend for the auth store. The database runs
// in WAL mode so several processes can share one file.
package sqlite

import (
	"context"
	"fmt"
	"io"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS auth_store (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

// Backend keeps records in an auth_store table
type Backend struct {
	pool *sqlitex.Pool
}

// Open opens (creating if needed) the database at path
func Open(path string) (*Backend, error) {
	// NewPool's default flags include OpenWAL and OpenURI
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	pool, err := sqlitex.NewPool(dsn, sqlitex.PoolOptions{
		PoolSize: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store at %s: %w", path, err)
	}
	return New(pool)
}

// New uses an existing pool and ensures the schema exists
func New(pool *sqlitex.Pool) (*Backend, error) {
	b := &Backend{pool: pool}

	conn, err := pool.Take(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get db connection: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("failed to create auth_store table: %w", err)
	}
	return b, nil
}

// Load implements store.Backend
func (b *Backend) Load(key string) ([]byte, error) {
	conn, err := b.pool.Take(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("failed to get db connection for key '%s': %w", key, err)
	}
	defer b.pool.Put(conn)

	var data []byte
	err = sqlitex.Execute(conn,
		`SELECT value FROM auth_store WHERE key = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) (err error) {
				data, err = io.ReadAll(stmt.ColumnReader(0))
				return err
			},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load key '%s': %w", key, err)
	}

	// data is nil if no row was found
	return data, nil
}

// Save implements store.Backend
func (b *Backend) Save(key string, data []byte) error {
	conn, err := b.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("failed to get db connection for key '%s': %w", key, err)
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO auth_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		&sqlitex.ExecOptions{
			Args: []any{key, data, time.Now().UTC().Format(time.RFC3339)},
		})
	if err != nil {
		return fmt.Errorf("failed to save key '%s': %w", key, err)
	}
	return nil
}

// Delete implements store.Backend
func (b *Backend) Delete(key string) error {
	conn, err := b.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("failed to get db connection for key '%s': %w", key, err)
	}
	defer b.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM auth_store WHERE key = ?;`, &sqlitex.ExecOptions{
		Args: []any{key},
	}); err != nil {
		return fmt.Errorf("failed to delete key '%s': %w", key, err)
	}
	return nil
}

// Close closes the pool
func (b *Backend) Close() error {
	return b.pool.Close()
}
