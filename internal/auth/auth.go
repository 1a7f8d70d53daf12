// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements user registration and password validation
// against a SQLite-backed credential store.
package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cloudvault/cloudvault/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Service registers and authenticates users.
type Service struct {
	pool *sqlitepool.Pool
}

// Open initializes the users table (if needed) against pool and
// returns a ready-to-use Service.
func Open(pool *sqlitepool.Pool) (*Service, error) {
	conn, err := pool.Take(context.Background())
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("auth: initializing schema: %w", err)
	}
	return &Service{pool: pool}, nil
}

// Register creates a new user with the given password, hashed with
// bcrypt. It reports false (not an error) if username or password is
// empty, or if the username is already taken — mirroring the original
// service's idempotent-safe-but-not-idempotent REGISTER semantics,
// where a duplicate registration is rejected rather than silently
// treated as success.
func (s *Service) Register(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	if _, found, err := s.find(ctx, username); err != nil {
		return false, err
	} else if found {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("auth: hashing password: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("auth: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO users(username, password_hash) VALUES (?, ?)`, &sqlitex.ExecOptions{
		Args: []any{username, string(hash)},
	})
	if err != nil {
		return false, fmt.Errorf("auth: inserting user %s: %w", username, err)
	}
	return true, nil
}

// Validate reports whether password is correct for username.
func (s *Service) Validate(ctx context.Context, username, password string) (bool, error) {
	hash, found, err := s.find(ctx, username)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil, nil
}

// find returns the stored password hash for username, if the user exists.
func (s *Service) find(ctx context.Context, username string) (string, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("auth: %w", err)
	}
	defer s.pool.Put(conn)

	var hash string
	found := false
	err = sqlitex.Execute(conn, `SELECT password_hash FROM users WHERE username = ?`, &sqlitex.ExecOptions{
		Args: []any{username},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			hash = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("auth: looking up %s: %w", username, err)
	}
	return hash, found, nil
}
