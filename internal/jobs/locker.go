package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"callcenter-platform/pkg/utils"
)

// Locker hands out at most one slot per key. It keeps a call from being
// analysed by two workers at once, including across processes.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// RedisLocker uses the concurrency-cap scripts with a limit of one. The TTL
// frees the slot if the holder dies mid-job.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	ok, err := utils.AcquireConcurrencyCap(ctx, l.rdb, key, 1, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// the job context may already be done
			_ = utils.ReleaseConcurrencyCap(context.Background(), l.rdb, key)
		})
	}, true, nil
}
