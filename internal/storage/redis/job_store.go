// Package redis stores job history in Redis as JSON documents with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// DefaultPrefix namespaces job keys.
const DefaultPrefix = "creator-crawler:job:"

type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// JobStore persists job records in Redis.
type JobStore struct {
	client kv
	prefix string
	ttl    time.Duration
}

// NewJobStore connects to addr. A zero ttl keeps records forever.
func NewJobStore(addr, prefix string, ttl time.Duration) *JobStore {
	return newJobStore(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

func newJobStore(client kv, prefix string, ttl time.Duration) *JobStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &JobStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the Redis client.
func (s *JobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// SaveJob writes the record under its run ID, refreshing the TTL.
func (s *JobStore) SaveJob(ctx context.Context, job crawler.JobRecord) error {
	if job.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+job.RunID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.RunID, err)
	}
	return nil
}

// GetJob reads the record for runID or returns crawler.ErrNotFound.
func (s *JobStore) GetJob(ctx context.Context, runID string) (crawler.JobRecord, error) {
	val, err := s.client.Get(ctx, s.prefix+runID).Result()
	if errors.Is(err, redis.Nil) {
		return crawler.JobRecord{}, fmt.Errorf("job %s: %w", runID, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.JobRecord{}, fmt.Errorf("get job %s: %w", runID, err)
	}
	var job crawler.JobRecord
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return crawler.JobRecord{}, fmt.Errorf("decode job %s: %w", runID, err)
	}
	return job, nil
}
