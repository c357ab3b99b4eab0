package xhs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

const (
	defaultNavTimeout   = 60 * time.Second
	defaultLoginTimeout = 120 * time.Second
	loginPollInterval   = 2 * time.Second
)

// BrowserConfig controls the chromedp-backed crawler.
type BrowserConfig struct {
	// UserDataDir holds one Chrome profile directory per account.
	UserDataDir  string
	UserAgent    string
	NavTimeout   time.Duration
	LoginTimeout time.Duration
}

// BrowserCrawler drives a real Chrome profile per account.
type BrowserCrawler struct {
	cfg    BrowserConfig
	logger *zap.Logger
	fetch  pageFunc
	retry  retryPolicy
}

// NewBrowserCrawler builds a BrowserCrawler.
func NewBrowserCrawler(cfg BrowserConfig, logger *zap.Logger) *BrowserCrawler {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = defaultLoginTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &BrowserCrawler{cfg: cfg, logger: logger, retry: defaultRetryPolicy()}
	b.fetch = b.renderPage
	return b
}

// ProfileDir returns the Chrome user data directory for account.
func (b *BrowserCrawler) ProfileDir(account string) string {
	return filepath.Join(b.cfg.UserDataDir, account)
}

// Crawl implements crawler.Crawler.
func (b *BrowserCrawler) Crawl(ctx context.Context, req crawler.CrawlRequest) ([]crawler.RawNote, error) {
	return crawlTargets(ctx, req, b.retry.wrap(b.fetch, b.logger), b.logger)
}

// CheckLogin implements crawler.LoginChecker by reading the session flag on the explore page.
func (b *BrowserCrawler) CheckLogin(ctx context.Context, account string, headless bool) (bool, error) {
	page, err := b.fetch(ctx, account, BaseURL+"/explore", headless)
	if err != nil {
		return false, err
	}
	return ParseLoginState(page)
}

// Login opens the explore page and waits for the user to finish signing in.
func (b *BrowserCrawler) Login(ctx context.Context, account string, headless bool) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.LoginTimeout)
	defer cancel()

	taskCtx, release, err := b.session(ctx, account, headless)
	if err != nil {
		return err
	}
	defer release()

	if err := chromedp.Run(taskCtx, b.setup(), chromedp.Navigate(BaseURL+"/explore")); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	b.logger.Info("waiting for login", zap.String("account", account), zap.Duration("timeout", b.cfg.LoginTimeout))

	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()
	for {
		var html string
		if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("read login page: %w", err)
		}
		if ok, _ := ParseLoginState([]byte(html)); ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("login not completed: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *BrowserCrawler) renderPage(ctx context.Context, account, url string, headless bool) ([]byte, error) {
	taskCtx, release, err := b.session(ctx, account, headless)
	if err != nil {
		return nil, err
	}
	defer release()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavTimeout)
	defer cancel()

	var html string
	err = chromedp.Run(taskCtx,
		b.setup(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return []byte(html), nil
}

// session starts Chrome on the account's profile directory.
func (b *BrowserCrawler) session(ctx context.Context, account string, headless bool) (context.Context, func(), error) {
	dir := b.ProfileDir(account)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create profile dir: %w", err)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(dir),
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}, nil
}

func (b *BrowserCrawler) setup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
