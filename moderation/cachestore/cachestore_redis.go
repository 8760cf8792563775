package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "contentcheck/"

// Shared between replicas through redis, with a small TinyLFU cache in front of it in each process. Entries are msgpack encoded by go-redis/cache.
type RedisLabelStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

var _ LabelStore = (*RedisLabelStore)(nil)

func NewRedisLabelStore(redisURL string, ttl time.Duration) (*RedisLabelStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisLabelStoreFromClient(rdb, ttl), nil
}

func NewRedisLabelStoreFromClient(rdb redis.UniversalClient, ttl time.Duration) *RedisLabelStore {
	// keep local entries briefly so a purge elsewhere is seen soon
	localTTL := time.Minute
	if ttl < localTTL {
		localTTL = ttl
	}
	return &RedisLabelStore{
		cache: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(10_000, localTTL),
		}),
		ttl: ttl,
	}
}

func (s *RedisLabelStore) Lookup(ctx context.Context, url string) ([]string, bool, error) {
	var labels []string
	err := s.cache.Get(ctx, redisKeyPrefix+entryKey(url), &labels)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("label cache lookup: %w", err)
	}
	if labels == nil {
		labels = []string{}
	}
	return labels, true, nil
}

func (s *RedisLabelStore) Remember(ctx context.Context, url string, labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	return s.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisKeyPrefix + entryKey(url),
		Value: labels,
		TTL:   s.ttl,
	})
}

func (s *RedisLabelStore) Forget(ctx context.Context, url string) error {
	err := s.cache.Delete(ctx, redisKeyPrefix+entryKey(url))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
