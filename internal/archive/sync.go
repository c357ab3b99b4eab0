package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// Syncer moves local profile directories to and from an ArchiveStore.
type Syncer struct {
	store crawler.ArchiveStore
}

// NewSyncer builds a Syncer over store.
func NewSyncer(store crawler.ArchiveStore) *Syncer {
	return &Syncer{store: store}
}

// Pull downloads key and replaces the contents of dir with it.
// A missing archive returns an error matching crawler.ErrNotFound and leaves dir untouched.
func (s *Syncer) Pull(ctx context.Context, key, dir string) error {
	rc, err := s.store.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "profile-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := tmp.ReadFrom(rc)
	if err != nil {
		return fmt.Errorf("buffer archive: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear profile dir: %w", err)
	}
	return Extract(tmp, size, dir)
}

// Push zips dir and uploads it to key, returning the stored URI.
func (s *Syncer) Push(ctx context.Context, key, dir string) (string, error) {
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("profile dir: %w", err)
	}
	tmp, err := os.CreateTemp("", "profile-*.zip")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := Zip(dir, tmp); err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return "", fmt.Errorf("rewind archive: %w", err)
	}
	uri, err := s.store.Upload(ctx, key, tmp)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return uri, nil
}
