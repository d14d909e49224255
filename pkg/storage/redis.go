package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore initializes Redis storage
// addr: e.g., "localhost:6379"
// prefix: Key prefix (e.g., "launchpad_indexer_"). The checkpoint lives at prefix+"checkpoint",
// dedup entries at prefix+"dedup:"+kind.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisStoreWithClient(rdb, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "indexer:"
	}
	return &RedisStore{client: rdb, prefix: prefix}
}

func (r *RedisStore) checkpointKey() string { return r.prefix + "checkpoint" }
func (r *RedisStore) kindsKey() string      { return r.prefix + "dedup_kinds" }
func (r *RedisStore) dedupKey(kind string) string {
	return r.prefix + "dedup:" + kind
}

func (r *RedisStore) LoadCheckpoint() (Checkpoint, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, r.checkpointKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return cp, nil
}

func (r *RedisStore) SaveCheckpoint(cp Checkpoint) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	// Set value with no expiration (0)
	return r.client.Set(ctx, r.checkpointKey(), string(b), 0).Err()
}

func (r *RedisStore) AppendDedup(kind string, entry DedupEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, r.kindsKey(), kind).Err(); err != nil {
		return err
	}
	return r.client.RPush(ctx, r.dedupKey(kind), string(b)).Err()
}

func (r *RedisStore) LoadDedup() (DedupLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	kinds, err := r.client.SMembers(ctx, r.kindsKey()).Result()
	if err != nil {
		return nil, err
	}

	l := make(DedupLog, len(kinds))
	for _, kind := range kinds {
		items, err := r.client.LRange(ctx, r.dedupKey(kind), 0, -1).Result()
		if err != nil {
			return nil, err
		}
		entries := make([]DedupEntry, 0, len(items))
		for _, item := range items {
			var e DedupEntry
			if err := json.Unmarshal([]byte(item), &e); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, kind, err)
			}
			entries = append(entries, e)
		}
		l[kind] = entries
	}
	return l, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
