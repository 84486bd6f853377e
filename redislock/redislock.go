// Package redislock serializes sign ins for one identity across instances
// with a Redis SET NX lease.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	auth "github.com/pivot-market/pivot-auth"
)

const (
	DefaultTTL           = 10 * time.Second
	DefaultRetryInterval = 25 * time.Millisecond
	DefaultPrefix        = "pvt:lock:"
)

// releases the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements auth.IdentityLocker on top of a Redis client. A lease
// expires after TTL so a crashed holder never blocks the identity for good.
type Locker struct {
	client        redis.Cmdable
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	logger        auth.Logger
}

var _ auth.IdentityLocker = (*Locker)(nil)

// Option configures a Locker
type Option func(*Locker)

// WithTTL sets the lease duration
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets how long Lock waits between attempts
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithPrefix namespaces the lock keys
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLogger sets the logger used for release failures
func WithLogger(logger auth.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a Locker over client
func New(client redis.Cmdable, opts ...Option) *Locker {
	l := &Locker{
		client:        client,
		prefix:        DefaultPrefix,
		ttl:           DefaultTTL,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the Redis key used for an identity key
func (l *Locker) Key(key string) string {
	return l.prefix + key
}

// Lock implements auth.IdentityLocker. It retries until the lease is taken
// or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.Key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("redis lock %s: %w", redisKey, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(redisKey, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		// the caller ctx may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			if l.logger != nil {
				l.logger.Warn("redis lock release failed", "key", redisKey, "error", err)
			}
		}
	}
}
