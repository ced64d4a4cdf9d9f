package statcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys carry a TTL only so an abandoned namespace cleans itself up; within a
// live session entries still last until Clear.
const ttlEntry = 24 * time.Hour

// Redis keeps the cache in a per-session key namespace. The namespace is
// created on first Put and deleted wholesale by Clear, so nothing meaningful
// outlives the session.
type Redis struct {
	rdb       *redis.Client
	namespace string
}

// NewRedis builds a cache scoped to sessionID.
func NewRedis(rdb *redis.Client, sessionID string) *Redis {
	return &Redis{rdb: rdb, namespace: "hyrelay:sc:" + sessionID + ":"}
}

func (r *Redis) key(username string) string { return r.namespace + username }

func (r *Redis) Get(ctx context.Context, username string) (*Entry, error) {
	raw, err := r.rdb.Get(ctx, r.key(username)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Redis) Put(ctx context.Context, username string, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(username), raw, ttlEntry).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.namespace+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}
