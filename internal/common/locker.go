package common

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"spacewh/mis/internal/logging"
)

// ErrLockTimeout is returned when a keyed lock could not be taken before the
// context ended.
var ErrLockTimeout = errors.New("lock not acquired")

// KeyedLocker serializes work per key. The returned unlock func is safe to
// call more than once.
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ============================================================================
// In-process locker
// ============================================================================

type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

var _ KeyedLocker = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// held returns how many keys currently have holders or waiters.
func (l *MemoryLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// ============================================================================
// Redis locker
// ============================================================================

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a KeyedLocker shared by every replica pointed at the same
// Redis. Locks expire after ttl so a crashed holder cannot wedge a key.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

var _ KeyedLocker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				logging.Warn("Failed to release lock", "key", redisKey, "error", err)
			}
		})
	}, nil
}
