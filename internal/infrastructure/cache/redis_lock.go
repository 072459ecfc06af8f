package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"docflow/internal/core/apperror"
	"docflow/internal/core/lock"
	"docflow/pkg/logger"
)

// releaseScript deletes a key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends a key's expiry only while it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLockConfig tunes the distributed locker.
type RedisLockConfig struct {
	// Prefix namespaces lock keys, e.g. "docflow:lock:".
	Prefix string
	// TTL bounds how long a crashed holder keeps a key. Live holders
	// extend it every RefreshInterval until they release.
	TTL time.Duration
	// RefreshInterval defaults to TTL/3.
	RefreshInterval time.Duration
	// Timeout is the maximum wait for all keys. Zero waits until ctx is done.
	Timeout time.Duration
	// RetryInterval is the polling interval while a key is held elsewhere.
	RetryInterval time.Duration
}

// DefaultRedisLockConfig returns sensible defaults.
func DefaultRedisLockConfig() RedisLockConfig {
	return RedisLockConfig{
		Prefix:        "docflow:lock:",
		TTL:           30 * time.Second,
		Timeout:       5 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// RedisLocker implements lock.Locker with SET NX PX per key.
type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisLockConfig
}

var _ lock.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a distributed locker.
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockConfig) *RedisLocker {
	def := DefaultRedisLockConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.RefreshInterval <= 0 || cfg.RefreshInterval >= cfg.TTL {
		cfg.RefreshInterval = cfg.TTL / 3
	}
	return &RedisLocker{client: client, cfg: cfg}
}

// Acquire implements lock.Locker.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (lock.Release, error) {
	keys = lock.Normalize(keys)
	token := uuid.NewString()

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquireOne(ctx, key, token); err != nil {
			l.release(acquired, token)
			return nil, apperror.NewResourceBusy(keys).WithCause(err)
		}
		acquired = append(acquired, key)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(acquired, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(acquired, token)
		})
	}, nil
}

// keepAlive refreshes held keys until stop is closed.
func (l *RedisLocker) keepAlive(keys []string, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.cfg.RefreshInterval)
			lost, err := l.refresh(ctx, keys, token)
			cancel()
			if err != nil {
				logger.Warn(context.Background(), "failed to refresh lock", "keys", keys, "error", err)
				continue
			}
			if len(lost) > 0 {
				logger.Error(context.Background(), "lock expired while held", "keys", lost)
			}
		}
	}
}

// refresh resets the TTL of every key still holding token and returns
// the keys that were lost to expiry or another holder.
func (l *RedisLocker) refresh(ctx context.Context, keys []string, token string) ([]string, error) {
	var lost []string
	for _, key := range keys {
		n, err := refreshScript.Run(ctx, l.client, []string{l.cfg.Prefix + key}, token, l.cfg.TTL.Milliseconds()).Int()
		if err != nil {
			return lost, fmt.Errorf("refresh %s: %w", key, err)
		}
		if n == 0 {
			lost = append(lost, key)
		}
	}
	return lost, nil
}

func (l *RedisLocker) acquireOne(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.cfg.Prefix+key, token, l.cfg.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("setnx %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *RedisLocker) release(keys []string, token string) {
	// Release runs after the caller's context may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, l.client, []string{l.cfg.Prefix + keys[i]}, token).Err(); err != nil {
			logger.Warn(ctx, "failed to release lock", "key", keys[i], "error", err)
		}
	}
}
