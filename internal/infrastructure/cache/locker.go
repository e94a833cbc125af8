// Package cache holds the Redis client and the per-task lockers built on it.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/infrastructure/config"
	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/ports"
)

const lockPrefix = "streakboard:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock that someone else re-acquired is left alone.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLocker is a TaskLocker shared by every process using the same Redis.
type RedisLocker struct {
	client *redis.Client
	logger *logger.Logger
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(client *redis.Client, cfg config.LockConfig, log *logger.Logger) ports.TaskLocker {
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLocker{
		client: client,
		logger: log.WithComponent("redis_locker"),
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		retry:  retry,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := withWait(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, redisKey, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, lockBusy(ctx, key)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, lockBusy(ctx, key)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		l.logger.WithError(err).Warnw("Failed to release lock", "key", redisKey)
	}
}

// LocalLocker is an in-process TaskLocker. Entries are reference counted and
// dropped once nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

type localLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker(cfg config.LockConfig) *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*localLock),
		wait:  cfg.Wait,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	waitCtx, cancel := withWait(ctx, l.wait)
	defer cancel()

	select {
	case lk.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.sem
				l.drop(key, lk)
			})
		}, nil
	case <-waitCtx.Done():
		l.drop(key, lk)
		return nil, lockBusy(ctx, key)
	}
}

// Len reports how many keys are currently tracked.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *LocalLocker) drop(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

func withWait(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, wait)
}

// lockBusy reports a caller cancellation as is and a wait timeout as a
// concurrent update.
func lockBusy(parent context.Context, key string) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return fmt.Errorf("acquire lock %s: %w", key, entities.ErrConcurrentUpdate)
}
