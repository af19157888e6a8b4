package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	companion "github.com/cyberFlowTech/companion-core-go"
)

// RedisMemoryStore implements companion.MemoryStore on a Redis backend.
// Keys are namespaced as "{prefix}:{namespace}:{key}" for KV entries and
// "{prefix}:{namespace}:list:{key}" for lists.
type RedisMemoryStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	ctx    context.Context
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "companion"
	TTL      time.Duration // KV entry expiry, 0 = no expiry
}

// NewRedisMemoryStore connects to Redis and returns the store. The
// connection is verified with a ping so a bad address fails fast.
func NewRedisMemoryStore(config RedisConfig) (*RedisMemoryStore, error) {
	if config.Prefix == "" {
		config.Prefix = "companion"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisMemoryStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
		ctx:    ctx,
	}, nil
}

// NewRedisMemoryStoreFromClient wraps an existing client. Used by tests.
func NewRedisMemoryStoreFromClient(client *redis.Client, prefix string) *RedisMemoryStore {
	if prefix == "" {
		prefix = "companion"
	}
	return &RedisMemoryStore{
		client: client,
		prefix: prefix,
		ctx:    context.Background(),
	}
}

func (r *RedisMemoryStore) kvKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, namespace, key)
}

func (r *RedisMemoryStore) listKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:list:%s", r.prefix, namespace, key)
}

func (r *RedisMemoryStore) Get(namespace, key string) (string, error) {
	val, err := r.client.Get(r.ctx, r.kvKey(namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (r *RedisMemoryStore) Set(namespace, key, value string) error {
	return r.client.Set(r.ctx, r.kvKey(namespace, key), value, r.ttl).Err()
}

func (r *RedisMemoryStore) Delete(namespace, key string) error {
	return r.client.Del(r.ctx, r.kvKey(namespace, key)).Err()
}

// ScanPrefix returns the namespace's KV keys starting with prefix, sorted.
// List keys are excluded.
func (r *RedisMemoryStore) ScanPrefix(namespace, prefix string) ([]string, error) {
	pattern := fmt.Sprintf("%s:%s:%s*", r.prefix, namespace, prefix)
	strip := fmt.Sprintf("%s:%s:", r.prefix, namespace)
	listMarker := "list:"

	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(r.ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			k = strings.TrimPrefix(k, strip)
			if strings.HasPrefix(k, listMarker) {
				continue
			}
			keys = append(keys, k)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisMemoryStore) Append(namespace, key, value string) error {
	return r.client.RPush(r.ctx, r.listKey(namespace, key), value).Err()
}

// GetList returns the last limit items, oldest first. limit <= 0 returns
// the whole list.
func (r *RedisMemoryStore) GetList(namespace, key string, limit int) ([]string, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	return r.client.LRange(r.ctx, r.listKey(namespace, key), start, -1).Result()
}

func (r *RedisMemoryStore) TrimList(namespace, key string, maxSize int) error {
	return r.client.LTrim(r.ctx, r.listKey(namespace, key), int64(-maxSize), -1).Err()
}

func (r *RedisMemoryStore) ListLength(namespace, key string) (int, error) {
	n, err := r.client.LLen(r.ctx, r.listKey(namespace, key)).Result()
	return int(n), err
}

func (r *RedisMemoryStore) Close() error {
	return r.client.Close()
}

// Compile-time interface check.
var _ companion.MemoryStore = (*RedisMemoryStore)(nil)
