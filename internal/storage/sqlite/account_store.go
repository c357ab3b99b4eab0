// Package sqlite provides a single-file account store for local deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	identity    TEXT PRIMARY KEY,
	login_valid BOOLEAN NOT NULL,
	checked_at  DATETIME NOT NULL
)`

// AccountStore keeps account validity in a SQLite database.
type AccountStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*AccountStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &AccountStore{db: db}, nil
}

// Close closes the database.
func (s *AccountStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// UpsertAccount inserts the account or updates its validity in place.
func (s *AccountStore) UpsertAccount(ctx context.Context, account crawler.Account) error {
	if account.Identity == "" {
		return fmt.Errorf("account identity is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (identity, login_valid, checked_at) VALUES (?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET
	login_valid = excluded.login_valid,
	checked_at = excluded.checked_at`,
		account.Identity, account.LoginValid, account.CheckedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", account.Identity, err)
	}
	return nil
}

// ListAccounts returns every account in registration order.
func (s *AccountStore) ListAccounts(ctx context.Context) ([]crawler.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity, login_valid, checked_at FROM accounts ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []crawler.Account
	for rows.Next() {
		var a crawler.Account
		if err := rows.Scan(&a.Identity, &a.LoginValid, &a.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}
