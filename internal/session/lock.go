package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when another process holds the session.
var ErrLockNotObtained = errors.New("session is in use by another worker")

// Locker serializes use of one session across processes. The in-process
// semaphore in Registry already covers goroutines of a single worker.
type Locker interface {
	Obtain(ctx context.Context, sessionID int64) (release func(context.Context) error, err error)
}

// RedisLocker holds a redislock per session while a call sequence runs. The
// lock is refreshed every ttl/2 until released, so it outlives any sequence
// of calls; ttl only bounds how long a crashed holder blocks the session.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

// NewRedisLocker builds a locker whose locks expire ttl after the holder stops
// refreshing them. Obtain waits up to wait for a held lock.
func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		wait:    wait,
		backoff: 100 * time.Millisecond,
	}
}

func lockKey(sessionID int64) string {
	return fmt.Sprintf("session:%d", sessionID)
}

func (l *RedisLocker) Obtain(ctx context.Context, sessionID int64) (func(context.Context) error, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.client.Obtain(waitCtx, lockKey(sessionID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// waiting ran out while the lock stayed held
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("session %d: %w", sessionID, ErrLockNotObtained)
		}
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, stop, done)

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return lock.Release(ctx)
	}
	return release, nil
}

func (l *RedisLocker) keepAlive(lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			err := lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

var _ Locker = (*RedisLocker)(nil)
