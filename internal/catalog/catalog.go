// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog implements the metadata index that maps each
// user's logical file paths to the physical files backing them,
// keyed additionally by content digest so uploads of already-known
// content can be satisfied without transferring bytes ("instant
// transfer").
package catalog

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cloudvault/cloudvault/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	logical_path TEXT NOT NULL,
	md5 TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	size INTEGER NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(owner, logical_path)
);
CREATE INDEX IF NOT EXISTS idx_user_files_md5 ON user_files(md5);
`

// Entry is one row of the metadata catalog.
type Entry struct {
	Owner       string
	LogicalPath string
	MD5         string
	StoragePath string
	Size        int64
}

// Catalog is a SQLite-backed, connection-pooled metadata index.
type Catalog struct {
	pool *sqlitepool.Pool
}

// Open initializes the user_files table (if needed) against pool and
// returns a ready-to-use Catalog.
func Open(pool *sqlitepool.Pool) (*Catalog, error) {
	conn, err := pool.Take(context.Background())
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("catalog: initializing schema: %w", err)
	}
	return &Catalog{pool: pool}, nil
}

// FindByPath looks up the entry for owner's logicalPath, if any.
func (c *Catalog) FindByPath(ctx context.Context, owner, logicalPath string) (Entry, bool, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return Entry{}, false, fmt.Errorf("catalog: %w", err)
	}
	defer c.pool.Put(conn)

	var entry Entry
	found := false
	err = sqlitex.Execute(conn, `
		SELECT owner, logical_path, md5, storage_path, size
		FROM user_files WHERE owner = ? AND logical_path = ?
	`, &sqlitex.ExecOptions{
		Args: []any{owner, logicalPath},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry = entryFromStmt(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("catalog: find by path: %w", err)
	}
	return entry, found, nil
}

// FindByMD5 looks up any one entry (owner unspecified) whose content
// digest matches md5. This backs content-addressed instant transfer:
// if some user somewhere already has these exact bytes stored, a new
// upload with the same digest can be served by copying that file
// instead of re-receiving it from the uploading client.
func (c *Catalog) FindByMD5(ctx context.Context, md5 string) (Entry, bool, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return Entry{}, false, fmt.Errorf("catalog: %w", err)
	}
	defer c.pool.Put(conn)

	var entry Entry
	found := false
	err = sqlitex.Execute(conn, `
		SELECT owner, logical_path, md5, storage_path, size
		FROM user_files WHERE md5 = ? LIMIT 1
	`, &sqlitex.ExecOptions{
		Args: []any{md5},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry = entryFromStmt(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("catalog: find by md5: %w", err)
	}
	return entry, found, nil
}

// Upsert inserts or updates the catalog row for (owner, logicalPath).
func (c *Catalog) Upsert(ctx context.Context, entry Entry) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO user_files(owner, logical_path, md5, storage_path, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, logical_path)
		DO UPDATE SET md5 = excluded.md5,
		              storage_path = excluded.storage_path,
		              size = excluded.size,
		              updated_at = CURRENT_TIMESTAMP
	`, &sqlitex.ExecOptions{
		Args: []any{entry.Owner, entry.LogicalPath, entry.MD5, entry.StoragePath, entry.Size},
	})
	if err != nil {
		return fmt.Errorf("catalog: upsert: %w", err)
	}
	return nil
}

// Remove deletes the catalog row for (owner, logicalPath), if any.
func (c *Catalog) Remove(ctx context.Context, owner, logicalPath string) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM user_files WHERE owner = ? AND logical_path = ?`, &sqlitex.ExecOptions{
		Args: []any{owner, logicalPath},
	})
	if err != nil {
		return fmt.Errorf("catalog: remove: %w", err)
	}
	return nil
}

func entryFromStmt(stmt *sqlite.Stmt) Entry {
	return Entry{
		Owner:       stmt.ColumnText(0),
		LogicalPath: stmt.ColumnText(1),
		MD5:         stmt.ColumnText(2),
		StoragePath: stmt.ColumnText(3),
		Size:        stmt.ColumnInt64(4),
	}
}
