package cmd

import (
	"fmt"

	"github.com/dukex/journey/pkg/lock"
	redislock "github.com/dukex/journey/pkg/lock/redis"
)

// NewLocker returns the per-run lock selected by lockURL: the in-process
// keyed lock for "" or memory://, a Redis lock for redis:// URLs. The
// returned close function releases the lock backend.
func NewLocker(lockURL string) (lock.Locker, func() error, error) {
	provider := parsePersistenceProvider(lockURL)

	switch {
	case lockURL == "" || provider == "memory":
		return lock.NewKeyedLocker(), func() error { return nil }, nil
	case provider == "redis" || provider == "rediss":
		locker, err := redislock.NewLockerFromURL(lockURL)
		if err != nil {
			return nil, nil, err
		}

		return locker, locker.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock provider %q, supported: memory, redis", provider)
	}
}
