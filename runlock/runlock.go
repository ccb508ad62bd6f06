// Package runlock provides the exclusive lock that keeps digest runs from overlapping.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is a non-blocking named mutex shared across processes.
type Locker interface {
	// TryLock reports whether the lock was acquired. Contention is not an error.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Renewer is a Locker whose hold lapses after TTL unless renewed.
type Renewer interface {
	Locker
	// Renew extends the hold and reports whether it was still ours.
	Renew(ctx context.Context) (bool, error)
	TTL() time.Duration
}

// ErrLockLost is returned when a held lock could not be renewed.
var ErrLockLost = errors.New("run lock lost")

// WithLock runs fn while holding l. When the lock is held elsewhere fn is not
// called and ran is false. The lock is released on every exit path from fn.
// A Renewer is renewed every third of its TTL; if renewal fails fn's context
// is cancelled and ErrLockLost is returned.
func WithLock(ctx context.Context, l Locker, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := l.TryLock(ctx)
	if err != nil {
		return false, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// Release even if ctx was cancelled mid-run.
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if uerr := l.Unlock(uctx); uerr != nil {
			slog.Error("failed to release run lock", "error", uerr)
			if err == nil {
				err = fmt.Errorf("releasing run lock: %w", uerr)
			}
		}
	}()

	r, renews := l.(Renewer)
	if !renews || r.TTL() <= 0 {
		return true, fn(ctx)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := keepAlive(runCtx, r, cancel)
	err = fn(runCtx)
	stop()
	if errors.Is(context.Cause(runCtx), ErrLockLost) {
		return true, errors.Join(ErrLockLost, err)
	}
	return true, err
}

// keepAlive renews r until the returned stop func is called or renewal fails.
func keepAlive(ctx context.Context, r Renewer, cancel context.CancelCauseFunc) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(max(r.TTL()/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := r.Renew(ctx)
				if err == nil && ok {
					continue
				}
				slog.Error("run lock renewal failed", "held", ok, "error", err)
				cancel(ErrLockLost)
				return
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// Connect opens a Redis client from a URL, falling back to treating it as a host:port address.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Extends the key's TTL only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a lease stored under one Redis key with a TTL, so a crashed
// holder's lock expires on its own.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lock on key "lock:<name>" with a random owner token.
func NewRedisLock(client *redis.Client, name string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    "lock:" + name,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryLock sets the key if it is absent.
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock removes the key if this lock still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	return nil
}

// Renew extends the key's TTL if this lock still owns it.
func (l *RedisLock) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis renew %s: %w", l.key, err)
	}
	return n == 1, nil
}

// TTL is the lease length set on acquire and renew.
func (l *RedisLock) TTL() time.Duration {
	return l.ttl
}
