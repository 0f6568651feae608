package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/quocanhngo/habitnudge/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces user documents in redis.
	DefaultRedisPrefix = "habit:user:"
	scanCount          = 500
)

// RedisRepository reads user documents stored as JSON strings under a key prefix
type RedisRepository struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRepository(rdb *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

// ListAllUserRecords walks the prefix with SCAN and fetches values with MGET per page.
// Keys that vanish between SCAN and MGET are ignored.
func (r *RedisRepository) ListAllUserRecords(ctx context.Context) (*Snapshot, error) {
	var entries []model.KVEntry
	seen := make(map[string]struct{})

	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s*: %w", r.prefix, err)
		}

		// SCAN may return a key more than once.
		fresh := keys[:0]
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			fresh = append(fresh, k)
		}

		if len(fresh) > 0 {
			vals, err := r.rdb.MGet(ctx, fresh...).Result()
			if err != nil {
				return nil, fmt.Errorf("mget: %w", err)
			}
			for i, v := range vals {
				s, ok := v.(string)
				if !ok {
					continue
				}
				entries = append(entries, model.KVEntry{
					Key:   strings.TrimPrefix(fresh[i], r.prefix),
					Value: []byte(s),
				})
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return decodeRows(entries), nil
}

// Upsert stores a user document (seeder only)
func (r *RedisRepository) Upsert(ctx context.Context, rec model.UserRecord) error {
	raw, err := rec.EncodeValue()
	if err != nil {
		return err
	}
	return r.UpsertRaw(ctx, rec.ID, raw)
}

// UpsertRaw stores an arbitrary value under the prefixed key
func (r *RedisRepository) UpsertRaw(ctx context.Context, key string, raw []byte) error {
	return r.rdb.Set(ctx, r.prefix+key, raw, 0).Err()
}
