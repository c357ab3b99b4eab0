// Package credential tracks which platform accounts currently hold a valid login.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// Pool is an insertion-ordered registry of accounts. Records are created on
// first observation and never removed.
type Pool struct {
	mu       sync.RWMutex
	order    []string
	accounts map[string]crawler.Account
	store    crawler.AccountStore
	clock    crawler.Clock
	logger   *zap.Logger
}

// NewPool creates an empty Pool. store may be nil for a purely in-memory pool.
func NewPool(store crawler.AccountStore, clock crawler.Clock, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		accounts: make(map[string]crawler.Account),
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// Load seeds the pool from the backing store, keeping the stored order.
func (p *Pool) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	accounts, err := p.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, acct := range accounts {
		if acct.Identity == "" {
			continue
		}
		p.putLocked(acct)
	}
	p.logger.Info("credential pool loaded", zap.Int("accounts", len(p.order)))
	return nil
}

// Register adds identities the pool has not seen yet as unchecked (invalid)
// accounts. Known accounts keep their state. Nothing is written to the store.
func (p *Pool) Register(identities ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range identities {
		if id == "" {
			continue
		}
		if _, ok := p.accounts[id]; ok {
			continue
		}
		p.putLocked(crawler.Account{Identity: id})
	}
}

// Upsert inserts or updates an account's login validity and writes it through
// to the backing store. Store failures are logged, not returned.
func (p *Pool) Upsert(ctx context.Context, identity string, loginValid bool) crawler.Account {
	acct := crawler.Account{
		Identity:   identity,
		LoginValid: loginValid,
		CheckedAt:  p.now(),
	}
	p.mu.Lock()
	p.putLocked(acct)
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.UpsertAccount(ctx, acct); err != nil {
			p.logger.Warn("persist account failed", zap.String("account", identity), zap.Error(err))
		}
	}
	p.logger.Debug("account upserted", zap.String("account", identity), zap.Bool("login_valid", loginValid))
	return acct
}

// SnapshotValid returns the identities with a valid login in insertion order.
func (p *Pool) SnapshotValid() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if p.accounts[id].LoginValid {
			out = append(out, id)
		}
	}
	return out
}

// Get looks up a single account.
func (p *Pool) Get(identity string) (crawler.Account, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	acct, ok := p.accounts[identity]
	return acct, ok
}

// Accounts returns every known account in insertion order.
func (p *Pool) Accounts() []crawler.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.Account, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.accounts[id])
	}
	return out
}

func (p *Pool) putLocked(acct crawler.Account) {
	if _, exists := p.accounts[acct.Identity]; !exists {
		p.order = append(p.order, acct.Identity)
	}
	p.accounts[acct.Identity] = acct
}

func (p *Pool) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}
