// Package lock serialises work on a key, such as every step of one run.
package lock

import (
	"context"
	"sync"
	"time"
)

// UnlockFunc releases a held lock. Calling it more than once is a no-op.
type UnlockFunc func(ctx context.Context) error

// Locker acquires an exclusive lock on key. Implementations may expire the
// lock after ttl; in-process implementations ignore it.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedLocker is an in-process Locker holding one mutex per key. Entries are
// removed once nobody holds or waits for the key.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedLocker creates an empty in-process locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, key string, _ time.Duration) (UnlockFunc, error) {
	entry := l.acquire(key)

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)

		return nil, ctx.Err()
	}

	var once sync.Once

	return func(context.Context) error {
		once.Do(func() {
			<-entry.ch
			l.release(key, entry)
		})

		return nil
	}, nil
}

// Held reports how many keys are currently locked or awaited.
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

func (l *KeyedLocker) acquire(key string) *keyedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}

	entry.refs++

	return entry
}

func (l *KeyedLocker) release(key string, entry *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
