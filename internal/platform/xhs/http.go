package xhs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// CookieEnvPrefix prefixes the per-account cookie environment variable.
const CookieEnvPrefix = "XHS_COOKIE_"

// ErrNoCookie means no session cookie is configured for an account.
var ErrNoCookie = errors.New("no session cookie configured")

// HTTPConfig controls the colly-backed crawler.
type HTTPConfig struct {
	// CookieDir holds <account>.txt cookie files.
	CookieDir string
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// HTTPCrawler fetches profile pages with a stored session cookie.
type HTTPCrawler struct {
	cfg       HTTPConfig
	logger    *zap.Logger
	collector *colly.Collector
	retry     retryPolicy
}

// NewHTTPCrawler builds an HTTPCrawler.
func NewHTTPCrawler(cfg HTTPConfig, logger *zap.Logger) *HTTPCrawler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(cfg.Transport)
	c.SetRequestTimeout(cfg.Timeout)
	return &HTTPCrawler{cfg: cfg, logger: logger, collector: c, retry: defaultRetryPolicy()}
}

// Crawl implements crawler.Crawler.
func (h *HTTPCrawler) Crawl(ctx context.Context, req crawler.CrawlRequest) ([]crawler.RawNote, error) {
	return crawlTargets(ctx, req, h.retry.wrap(h.fetchPage, h.logger), h.logger)
}

// CheckLogin reports whether the account's cookie yields a logged-in explore page.
// A missing cookie is reported as not logged in.
func (h *HTTPCrawler) CheckLogin(ctx context.Context, account string, _ bool) (bool, error) {
	page, err := h.fetchPage(ctx, account, BaseURL+"/explore", true)
	if errors.Is(err, ErrNoCookie) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ParseLoginState(page)
}

// Login is not possible without a browser; cookies are provisioned out of band.
func (h *HTTPCrawler) Login(_ context.Context, account string, _ bool) error {
	return fmt.Errorf("interactive login for %s requires the browser engine", account)
}

// Cookie resolves the session cookie for account from the environment or the cookie dir.
func (h *HTTPCrawler) Cookie(account string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(CookieEnvName(account))); v != "" {
		return v, nil
	}
	if h.cfg.CookieDir != "" {
		data, err := os.ReadFile(filepath.Join(h.cfg.CookieDir, filepath.Base(account)+".txt"))
		if err == nil && strings.TrimSpace(string(data)) != "" {
			return strings.TrimSpace(string(data)), nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read cookie file: %w", err)
		}
	}
	return "", fmt.Errorf("account %s: %w", account, ErrNoCookie)
}

// CookieEnvName returns the environment variable holding account's cookie.
func CookieEnvName(account string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, account)
	return CookieEnvPrefix + name
}

func (h *HTTPCrawler) fetchPage(ctx context.Context, account, url string, _ bool) ([]byte, error) {
	cookie, err := h.Cookie(account)
	if err != nil {
		return nil, err
	}

	// Clones share the base collector's HTTP backend but not its callbacks.
	collector := h.collector.Clone()
	if h.cfg.UserAgent != "" {
		collector.UserAgent = h.cfg.UserAgent
	}

	var (
		body     []byte
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Cookie", cookie)
		r.Headers.Set("Referer", BaseURL+"/")
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &StatusError{Code: r.StatusCode, Err: err}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
