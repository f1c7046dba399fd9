package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// DefaultKeyPrefix namespaces snapshot keys in a shared Redis.
const DefaultKeyPrefix = "sincro:sheet:"

// RedisClient is the subset of go-redis used by the cache.
type RedisClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis stores one hash per source document with a field per section, so a
// document's sections are invalidated with a single DEL.
type Redis struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type redisEntry struct {
	StoredAt time.Time      `json:"stored_at"`
	Data     core.SheetData `json:"data"`
}

// NewRedis wraps client. ttl bounds both freshness and key lifetime.
func NewRedis(client RedisClient, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: DefaultKeyPrefix, ttl: ttl, now: time.Now}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string, ttl time.Duration) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return NewRedis(client, ttl), client, nil
}

// WithClock replaces the time source. Used by tests.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

func (r *Redis) key(docID string) string {
	return r.prefix + docID
}

// Get returns a fresh snapshot. Redis errors are logged and treated as a miss
// so the loader falls through to upstream.
func (r *Redis) Get(ctx context.Context, docID, section string) (core.SheetData, bool) {
	raw, err := r.client.HGet(ctx, r.key(docID), section).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache read failed", "source_doc_id", docID, "section", section, "error", err)
		}
		return core.SheetData{}, false
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Warn("cache entry unreadable", "source_doc_id", docID, "section", section, "error", err)
		return core.SheetData{}, false
	}
	if r.ttl > 0 && r.now().Sub(e.StoredAt) >= r.ttl {
		return core.SheetData{}, false
	}
	return e.Data, true
}

// Put stores a snapshot and refreshes the document key's expiry.
func (r *Redis) Put(ctx context.Context, docID, section string, data core.SheetData) {
	raw, err := json.Marshal(redisEntry{StoredAt: r.now(), Data: data})
	if err != nil {
		slog.Warn("cache entry not encodable", "source_doc_id", docID, "error", err)
		return
	}
	key := r.key(docID)
	if err := r.client.HSet(ctx, key, section, raw).Err(); err != nil {
		slog.Warn("cache write failed", "source_doc_id", docID, "section", section, "error", err)
		return
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			slog.Warn("cache expiry not set", "source_doc_id", docID, "error", err)
		}
	}
}

// Invalidate drops every section cached for docID.
func (r *Redis) Invalidate(ctx context.Context, docID string) {
	if err := r.client.Del(ctx, r.key(docID)).Err(); err != nil {
		slog.Warn("cache invalidation failed", "source_doc_id", docID, "error", err)
	}
}

// Ping reports whether the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ core.SyncCache = (*Redis)(nil)
