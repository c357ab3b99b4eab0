package xhs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// pageFunc fetches the rendered HTML of url for an account's session.
type pageFunc func(ctx context.Context, account, url string, headless bool) ([]byte, error)

// crawlTargets visits each creator profile in order. Failed targets are
// returned as crawler.TargetErrors together with the notes of the others.
func crawlTargets(ctx context.Context, req crawler.CrawlRequest, fetch pageFunc, logger *zap.Logger) ([]crawler.RawNote, error) {
	var (
		notes  []crawler.RawNote
		failed = crawler.TargetErrors{}
	)
	for _, target := range req.Targets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl canceled: %w", err)
		}
		page, err := fetch(ctx, req.Account, ProfileURL(target), req.Headless)
		if err != nil {
			logger.Warn("creator failed", zap.String("account", req.Account), zap.String("creator", target), zap.Error(err))
			failed[target] = err
			continue
		}
		found, err := ParseInitialState(page, target)
		if err != nil {
			logger.Warn("creator failed", zap.String("account", req.Account), zap.String("creator", target), zap.Error(err))
			failed[target] = err
			continue
		}
		logger.Debug("creator crawled",
			zap.String("account", req.Account),
			zap.String("creator", target),
			zap.Int("notes", len(found)),
		)
		notes = append(notes, found...)
	}
	if len(failed) > 0 {
		return notes, failed
	}
	return notes, nil
}
