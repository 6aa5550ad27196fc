// Package redis implements lock.Locker with Redis SET NX PX, for deployments
// where several engine processes share one store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/journey/pkg/lock"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix       = "journey:lock:"
	defaultPollInterval = 50 * time.Millisecond
	defaultTTL          = 30 * time.Second
)

// ErrLockAcquire is returned when Redis refuses to grant the lock.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const extendScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Locker polls SET NX PX until the key is free and releases with a
// compare-and-delete script so an expired holder cannot free a newer lock.
type Locker struct {
	client       *backend.Client
	prefix       string
	pollInterval time.Duration
}

type Option func(*Locker)

// WithPrefix sets the prefix of lock keys.
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithPollInterval sets how often a blocked Lock retries.
func WithPollInterval(interval time.Duration) Option {
	return func(l *Locker) {
		l.pollInterval = interval
	}
}

// NewLocker creates a locker from an existing client.
func NewLocker(client *backend.Client, opts ...Option) *Locker {
	l := &Locker{
		client:       client,
		prefix:       defaultPrefix,
		pollInterval: defaultPollInterval,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// NewLockerFromURL connects to the server described by a redis:// URL.
func NewLockerFromURL(redisURL string, opts ...Option) (*Locker, error) {
	options, err := backend.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewLocker(backend.NewClient(options), opts...), nil
}

// Lock acquires key, waiting until it is released, expires or ctx is done.
// While held, the lock's expiry is pushed back every ttl/3, so ttl only bounds
// how long the lock outlives a holder that stopped running.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (lock.UnlockFunc, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	lockKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, err)
		}

		if acquired {
			stop := make(chan struct{})
			go l.keepAlive(context.WithoutCancel(ctx), lockKey, token, ttl, stop)

			var once sync.Once

			return func(ctx context.Context) error {
				once.Do(func() { close(stop) })

				return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// keepAlive extends the lock until stop is closed or the lock is found to
// belong to someone else.
func (l *Locker) keepAlive(ctx context.Context, lockKey, token string, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		extended, err := l.client.Eval(ctx, extendScript, []string{lockKey}, token, ttl.Milliseconds()).Int()
		if err == nil && extended == 0 {
			return
		}
	}
}

// Close closes the underlying client.
func (l *Locker) Close() error {
	return l.client.Close()
}
