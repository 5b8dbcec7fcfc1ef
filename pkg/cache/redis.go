package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/chainlens/nlquery/pkg/types"
)

const (
	entryKeyPrefix   = "nlquery:cache:entry:"
	popularitySetKey = "nlquery:cache:popularity"
	sequenceKey      = "nlquery:cache:seq"

	// popularityScale separates the count component from the insertion
	// sequence component in a single ZSET score: score = count*popularityScale
	// - seq, so entries tie-break on insertion order (earlier first) for
	// equal counts (spec.md §4.6 "ties broken by insertion order").
	popularityScale = 1_000_000
)

// RedisBackend is the contracts.CacheBackend implementation backed by
// Redis: one hash per entry plus a sorted set for popularity ranking.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func entryKey(key types.NormalizedKey) string {
	return entryKeyPrefix + string(key)
}

func (r *RedisBackend) Get(ctx context.Context, key types.NormalizedKey) (types.CacheEntry, bool, error) {
	fields, err := r.client.HGetAll(ctx, entryKey(key)).Result()
	if err != nil {
		return types.CacheEntry{}, false, err
	}
	if len(fields) == 0 {
		return types.CacheEntry{}, false, nil
	}

	count, _ := strconv.ParseInt(fields["count"], 10, 64)
	entry := types.CacheEntry{
		SPARQLRaw:       fields["sparql"],
		OriginalQuery:   fields["original"],
		NormalizedQuery: types.NormalizedKey(key),
		Count:           count,
	}
	return entry, true, nil
}

func (r *RedisBackend) Store(ctx context.Context, key types.NormalizedKey, sparql, originalQuery string) error {
	hkey := entryKey(key)

	seq, err := r.seqFor(ctx, hkey)
	if err != nil {
		return err
	}

	if err := r.client.HSet(ctx, hkey, map[string]interface{}{
		"sparql":   sparql,
		"original": originalQuery,
		"seq":      seq,
	}).Err(); err != nil {
		return err
	}
	if err := r.client.HSetNX(ctx, hkey, "count", 0).Err(); err != nil {
		return err
	}

	count, err := r.client.HGet(ctx, hkey, "count").Int64()
	if err != nil {
		return err
	}
	return r.updateScore(ctx, key, count, seq)
}

func (r *RedisBackend) IncrementCount(ctx context.Context, key types.NormalizedKey) error {
	hkey := entryKey(key)
	count, err := r.client.HIncrBy(ctx, hkey, "count", 1).Result()
	if err != nil {
		return err
	}
	seq, err := r.client.HGet(ctx, hkey, "seq").Int64()
	if err != nil {
		return err
	}
	return r.updateScore(ctx, key, count, seq)
}

func (r *RedisBackend) Popular(ctx context.Context, limit int) ([]types.PopularQuery, error) {
	members, err := r.client.ZRevRange(ctx, popularitySetKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	results := make([]types.PopularQuery, 0, len(members))
	for _, normalized := range members {
		entry, found, err := r.Get(ctx, types.NormalizedKey(normalized))
		if err != nil || !found {
			continue
		}
		results = append(results, types.PopularQuery{
			OriginalQuery:   entry.OriginalQuery,
			NormalizedQuery: string(entry.NormalizedQuery),
			Count:           entry.Count,
		})
	}
	return results, nil
}

// seqFor returns hkey's existing insertion sequence, assigning a fresh
// one from the global counter the first time it's stored.
func (r *RedisBackend) seqFor(ctx context.Context, hkey string) (int64, error) {
	existing, err := r.client.HGet(ctx, hkey, "seq").Int64()
	if err == nil {
		return existing, nil
	}
	if err != redis.Nil {
		return 0, err
	}
	return r.client.Incr(ctx, sequenceKey).Result()
}

func (r *RedisBackend) updateScore(ctx context.Context, key types.NormalizedKey, count, seq int64) error {
	score := float64(count)*popularityScale - float64(seq)
	return r.client.ZAdd(ctx, popularitySetKey, redis.Z{Score: score, Member: string(key)}).Err()
}
