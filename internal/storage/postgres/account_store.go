// Package postgres provides a Postgres-backed account store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for account rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// AccountStore keeps account validity in a Postgres table:
//
//	CREATE TABLE accounts (
//		identity    TEXT PRIMARY KEY,
//		login_valid BOOLEAN NOT NULL,
//		checked_at  TIMESTAMPTZ NOT NULL,
//		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type AccountStore struct {
	pool  pool
	table string
}

// NewAccountStore connects to Postgres using cfg.
func NewAccountStore(ctx context.Context, cfg Config) (*AccountStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &AccountStore{pool: p, table: table}, nil
}

// NewAccountStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAccountStoreWithPool(p pool, table string) (*AccountStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &AccountStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "accounts"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *AccountStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertAccount inserts the account or updates its validity in place.
func (s *AccountStore) UpsertAccount(ctx context.Context, account crawler.Account) error {
	if account.Identity == "" {
		return fmt.Errorf("account identity is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (identity, login_valid, checked_at)
VALUES ($1, $2, $3)
ON CONFLICT (identity) DO UPDATE SET
	login_valid = EXCLUDED.login_valid,
	checked_at = EXCLUDED.checked_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, account.Identity, account.LoginValid, account.CheckedAt); err != nil {
		return fmt.Errorf("upsert account %s: %w", account.Identity, err)
	}
	return nil
}

// ListAccounts returns every account in registration order.
func (s *AccountStore) ListAccounts(ctx context.Context) ([]crawler.Account, error) {
	query := fmt.Sprintf(`SELECT identity, login_valid, checked_at FROM %s ORDER BY created_at, identity`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (crawler.Account, error) {
		var a crawler.Account
		err := row.Scan(&a.Identity, &a.LoginValid, &a.CheckedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan accounts: %w", err)
	}
	return accounts, nil
}
