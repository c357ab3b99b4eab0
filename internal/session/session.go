// Package session verifies and establishes account logins, keeping the
// credential pool and the archived browser profiles in step with the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/archive"
	"github.com/JakeFAU/creator-crawler/internal/credential"
	"github.com/JakeFAU/creator-crawler/internal/crawler"
	"github.com/JakeFAU/creator-crawler/internal/metrics"
)

// ErrArchiveDisabled is returned when a profile transfer is requested without archive storage.
var ErrArchiveDisabled = errors.New("profile archive storage is not configured")

// ErrProfileInUse is returned when a restore would replace the profile of the
// account the running job is crawling with.
var ErrProfileInUse = errors.New("profile is in use by the running job")

// Config locates an account's profile locally and remotely.
type Config struct {
	DefaultAccount string
	ArchiveKey     func(account string) string
	ProfileDir     func(account string) string
	// RunState reports the active job, if any. Nil means no job can be running.
	RunState func() crawler.RunState
}

// Options controls a single check or login.
type Options struct {
	Headless bool
	// Download restores the stored profile before checking. A missing archive is not an error.
	Download bool
	// Upload archives the profile once the login is known to be valid.
	Upload bool
}

// Manager runs login checks against the platform engine.
type Manager struct {
	pool     *credential.Pool
	login    crawler.LoginChecker
	profiles *archive.Syncer
	cfg      Config
	logger   *zap.Logger
}

// New builds a Manager. profiles may be nil, which disables Download and Upload.
func New(pool *credential.Pool, login crawler.LoginChecker, profiles *archive.Syncer, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{pool: pool, login: login, profiles: profiles, cfg: cfg, logger: logger}
}

// Account resolves an empty account name to the default account.
func (m *Manager) Account(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return m.cfg.DefaultAccount
}

// Check reports whether account is logged in and records the result in the pool.
func (m *Manager) Check(ctx context.Context, account string, opts Options) (bool, error) {
	account = m.Account(account)
	logger := m.logger.With(zap.String("account", account))

	if opts.Download {
		if m.inUse(account) {
			logger.Warn("profile restore refused while job is running")
			return false, fmt.Errorf("restore profile for %s: %w", account, ErrProfileInUse)
		}
		if err := m.pull(ctx, account); err != nil {
			if !errors.Is(err, crawler.ErrNotFound) {
				logger.Error("profile download failed", zap.Error(err))
				return false, err
			}
			logger.Warn("no stored profile archive", zap.Error(err))
		}
	}

	valid, err := m.login.CheckLogin(ctx, account, opts.Headless)
	if err != nil {
		logger.Error("login check failed", zap.Error(err))
		return false, err
	}
	m.pool.Upsert(ctx, account, valid)
	metrics.ObserveAccountCheck(valid)
	logger.Info("login checked", zap.Bool("valid", valid))

	if valid && opts.Upload {
		if err := m.push(ctx, account); err != nil {
			logger.Error("profile upload failed", zap.Error(err))
			return false, err
		}
	}
	return valid, nil
}

// Login drives an interactive login and marks the account valid on success.
func (m *Manager) Login(ctx context.Context, account string, opts Options) error {
	account = m.Account(account)
	logger := m.logger.With(zap.String("account", account))

	if err := m.login.Login(ctx, account, opts.Headless); err != nil {
		logger.Error("login failed", zap.Error(err))
		return err
	}
	m.pool.Upsert(ctx, account, true)
	logger.Info("login succeeded")

	if opts.Upload {
		if err := m.push(ctx, account); err != nil {
			logger.Error("profile upload failed", zap.Error(err))
			return err
		}
	}
	return nil
}

func (m *Manager) inUse(account string) bool {
	if m.cfg.RunState == nil {
		return false
	}
	state := m.cfg.RunState()
	return state.Running && state.Account == account
}

func (m *Manager) enabled() bool {
	return m.profiles != nil && m.cfg.ProfileDir != nil && m.cfg.ArchiveKey != nil
}

func (m *Manager) pull(ctx context.Context, account string) error {
	if !m.enabled() {
		return ErrArchiveDisabled
	}
	if err := m.profiles.Pull(ctx, m.cfg.ArchiveKey(account), m.cfg.ProfileDir(account)); err != nil {
		return fmt.Errorf("restore profile for %s: %w", account, err)
	}
	return nil
}

func (m *Manager) push(ctx context.Context, account string) error {
	if !m.enabled() {
		return ErrArchiveDisabled
	}
	uri, err := m.profiles.Push(ctx, m.cfg.ArchiveKey(account), m.cfg.ProfileDir(account))
	if err != nil {
		return fmt.Errorf("archive profile for %s: %w", account, err)
	}
	m.logger.Info("profile archived", zap.String("account", account), zap.String("uri", uri))
	return nil
}
