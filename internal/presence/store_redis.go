package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// RedisStore keeps one key per agent with the presence TTL as key expiry, so
// Redis does the expiring.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration

	Now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, Now: time.Now}
}

func entryKey(phone string) string { return keyPrefix + phone }

func (s *RedisStore) Heartbeat(ctx context.Context, hb Heartbeat) (Entry, error) {
	e, err := entryFrom(hb, s.Now())
	if err != nil {
		return Entry{}, err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	if err := s.rdb.Set(ctx, entryKey(e.Phone), b, s.ttl).Err(); err != nil {
		return Entry{}, fmt.Errorf("presence set: %w", err)
	}
	return e, nil
}

func (s *RedisStore) ListOnline(ctx context.Context) ([]Entry, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("presence scan: %w", err)
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("presence mget: %w", err)
	}

	out := make([]Entry, 0, len(vals))
	for _, v := range vals {
		// expired between SCAN and MGET
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}
