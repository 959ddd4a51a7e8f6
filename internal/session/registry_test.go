package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/testutil"
)

// slowClient blocks in Self until its context ends.
type slowClient struct {
	platform.Client
	closed atomic.Bool
}

func (s *slowClient) Self(ctx context.Context) (platform.Participant, error) {
	<-ctx.Done()
	return platform.Participant{}, ctx.Err()
}

func (s *slowClient) Close() error {
	s.closed.Store(true)
	return nil
}

func TestRegistry_UnregisteredSessionIsSessionFailure(t *testing.T) {
	r := NewRegistry(time.Second, logging.Discard())
	called := false
	err := r.WithConnection(context.Background(), 42, func(context.Context, platform.Client) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrSessionNotRegistered)
	assert.True(t, appErrors.IsSessionFailure(err))
	assert.False(t, called)
}

func TestRegistry_OneCallerAtATime(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRegistry(time.Second, logging.Discard())
	r.Register(1, testutil.NewFakeClient(platform.Participant{ID: 1}))

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.WithConnection(context.Background(), 1, func(ctx context.Context, c platform.Client) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
}

func TestRegistry_CallTimeoutBoundsEachCall(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, logging.Discard())
	r.Register(7, &slowClient{})

	start := time.Now()
	err := r.WithConnection(context.Background(), 7, func(ctx context.Context, c platform.Client) error {
		_, err := c.Self(ctx)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistry_WaitHonoursContext(t *testing.T) {
	r := NewRegistry(time.Second, logging.Discard())
	r.Register(3, testutil.NewFakeClient(platform.Participant{ID: 3}))

	hold := make(chan struct{})
	inside := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.WithConnection(context.Background(), 3, func(context.Context, platform.Client) error {
			close(inside)
			<-hold
			return nil
		})
	}()
	<-inside

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.WithConnection(ctx, 3, func(context.Context, platform.Client) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(hold)
	assert.NoError(t, <-done)
}

func TestRegistry_DeregisterClosesConnection(t *testing.T) {
	r := NewRegistry(time.Second, logging.Discard())
	c := &slowClient{}
	r.Register(9, c)
	require.True(t, r.Registered(9))

	r.Deregister(9)
	assert.False(t, r.Registered(9))
	assert.True(t, c.closed.Load())

}

func TestRegistry_ShutdownKeepsGatewaySessionsAttached(t *testing.T) {
	r := NewRegistry(time.Second, logging.Discard())

	// a re-dial of the same session replaces the entry without detaching it
	first, second := &slowClient{}, &slowClient{}
	r.Register(10, first)
	r.Register(10, second)
	assert.False(t, first.closed.Load())
	assert.False(t, second.closed.Load())
	assert.Equal(t, 1, r.Len())

	// another process may still be using session 10
	r.Close()
	assert.False(t, second.closed.Load())
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Registered(10))
}

func TestRegistry_RedisLockSerializesAcrossWorkers(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// two registries stand in for two worker processes sharing one identity
	a := NewRegistry(time.Second, logging.Discard())
	b := NewRegistry(time.Second, logging.Discard())
	a.SetLocker(NewRedisLocker(rdb, time.Second, time.Second))
	b.SetLocker(NewRedisLocker(rdb, time.Second, time.Second))
	a.Register(5, testutil.NewFakeClient(platform.Participant{ID: 5}))
	b.Register(5, testutil.NewFakeClient(platform.Participant{ID: 5}))

	hold := make(chan struct{})
	inside := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- a.WithConnection(context.Background(), 5, func(context.Context, platform.Client) error {
			close(inside)
			<-hold
			return nil
		})
	}()
	<-inside
	assert.True(t, mr.Exists(lockKey(5)))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	called := false
	err := b.WithConnection(ctx, 5, func(context.Context, platform.Client) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
	assert.False(t, appErrors.IsSessionFailure(err))

	close(hold)
	require.NoError(t, <-done)
	assert.False(t, mr.Exists(lockKey(5)))

	err = b.WithConnection(context.Background(), 5, func(context.Context, platform.Client) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRedisLocker_NotObtained(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLocker(rdb, time.Second, 50*time.Millisecond)
	release, err := l.Obtain(context.Background(), 11)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = l.Obtain(context.Background(), 11)
		assert.True(t, errors.Is(err, ErrLockNotObtained), "got %v", err)
	}

	require.NoError(t, release(context.Background()))
	release, err = l.Obtain(context.Background(), 11)
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
}

func TestRedisLocker_CallerDeadlineIsNotContention(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLocker(rdb, time.Second, time.Second)
	release, err := l.Obtain(context.Background(), 12)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Obtain(ctx, 12)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrLockNotObtained))
}

func TestRedisLocker_RefreshesWhileHeld(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ttl := 200 * time.Millisecond
	l := NewRedisLocker(rdb, ttl, 50*time.Millisecond)
	release, err := l.Obtain(context.Background(), 13)
	require.NoError(t, err)

	// most of the ttl is gone in redis time; the holder must push it back
	mr.FastForward(150 * time.Millisecond)
	assert.Eventually(t, func() bool { return mr.TTL(lockKey(13)) > 100*time.Millisecond }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, mr.Exists(lockKey(13)))

	require.NoError(t, release(context.Background()))
	assert.False(t, mr.Exists(lockKey(13)))
}
