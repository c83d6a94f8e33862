package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis. Expiry uses native Redis TTLs so no
// background cleanup is needed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Lister = (*RedisStore)(nil)
)

// NewRedisStore returns a Store using client. A non-empty prefix namespaces
// every key as "prefix:key" so several caches can share one Redis. The caller
// owns the client lifecycle.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, time.Duration(ttlSeconds(ttl))*time.Second).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// List pages through keys with SCAN. Redis treats Limit as a hint, so a page
// may hold more or fewer keys, and may be empty while Done is false.
func (s *RedisStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	var cursor uint64
	if opts.Cursor != "" {
		c, err := strconv.ParseUint(opts.Cursor, 10, 64)
		if err != nil {
			return ListResult{}, errors.Wrapf(err, "invalid redis list cursor %q", opts.Cursor)
		}
		cursor = c
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	match := globEscaper.Replace(s.key(opts.Prefix)) + "*"
	keys, next, err := s.client.Scan(ctx, cursor, match, int64(limit)).Result()
	if err != nil {
		return ListResult{}, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if s.prefix != "" {
			k = strings.TrimPrefix(k, s.prefix+":")
		}
		out = append(out, k)
	}
	if next == 0 {
		return ListResult{Keys: out, Done: true}, nil
	}
	return ListResult{Keys: out, Cursor: strconv.FormatUint(next, 10)}, nil
}
