package cmd

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/journey/pkg/lock"
	"github.com/dukex/journey/pkg/persistence/badger"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/persistence/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePersistenceProvider(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"file:///tmp/data":              "file",
		"./data":                        "file",
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://u:p@localhost/db": "postgresql",
		"redis://localhost:6379/0":      "redis",
		"badger:///var/lib/journey":     "badger",
		"memory://":                     "memory",
	}

	for url, expected := range tests {
		assert.Equal(t, expected, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	t.Run("file", func(t *testing.T) {
		t.Parallel()

		p, err := NewPersistence(t.Context(), discardLogger(), "file://"+t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &file.Persistence{}, p)
	})

	t.Run("bare path", func(t *testing.T) {
		t.Parallel()

		p, err := NewPersistence(t.Context(), discardLogger(), filepath.Join(t.TempDir(), "data"))
		require.NoError(t, err)
		assert.IsType(t, &file.Persistence{}, p)
	})

	t.Run("memory", func(t *testing.T) {
		t.Parallel()

		p, err := NewPersistence(t.Context(), discardLogger(), "memory://")
		require.NoError(t, err)
		assert.IsType(t, &memory.Persistence{}, p)
	})

	t.Run("badger", func(t *testing.T) {
		t.Parallel()

		p, err := NewPersistence(t.Context(), discardLogger(), "badger://"+t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &badger.Persistence{}, p)
		require.NoError(t, p.Close(t.Context()))
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()

		server := miniredis.RunT(t)

		p, err := NewPersistence(t.Context(), discardLogger(), "redis://"+server.Addr())
		require.NoError(t, err)
		assert.IsType(t, &redis.Persistence{}, p)
		require.NoError(t, p.Close(t.Context()))
	})

	t.Run("unsupported", func(t *testing.T) {
		t.Parallel()

		_, err := NewPersistence(t.Context(), discardLogger(), "mongodb://localhost")
		require.ErrorContains(t, err, "unsupported persistence provider")
	})
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := NewEventBus("gochannel", discardLogger())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("rabbitmq", discardLogger())
	require.ErrorIs(t, err, ErrUnsupportedEventBus)
}

func TestNewEventBus_KafkaWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, err := NewEventBus("kafka", discardLogger())
	require.Error(t, err)
}

func TestNewLocker(t *testing.T) {
	t.Parallel()

	locker, closeLocker, err := NewLocker("")
	require.NoError(t, err)
	assert.IsType(t, &lock.KeyedLocker{}, locker)
	require.NoError(t, closeLocker())

	server := miniredis.RunT(t)

	locker, closeLocker, err = NewLocker("redis://" + server.Addr())
	require.NoError(t, err)

	unlock, err := locker.Lock(t.Context(), "run:1", 0)
	require.NoError(t, err)
	require.NoError(t, unlock(t.Context()))
	require.NoError(t, closeLocker())

	_, _, err = NewLocker("etcd://localhost")
	require.Error(t, err)
}
