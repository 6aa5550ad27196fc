package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*file.Persistence, string) {
	t.Helper()

	root := t.TempDir()

	store, err := file.NewPersistence("file://" + root)
	require.NoError(t, err)

	return store, root
}

func TestPersistenceContract(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)

	persistencetest.RunPersistenceContract(t, store)
}

func TestPersistence_Layout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, root := newStore(t)

	journey := persistencetest.NewJourney(time.Now())
	require.NoError(t, store.SaveJourney(ctx, journey))

	run := persistencetest.NewRun(journey.ID, time.Now())
	require.NoError(t, store.CreateRun(ctx, run))

	assert.FileExists(t, filepath.Join(root, "journeys", journey.ID+".json"))
	assert.FileExists(t, filepath.Join(root, "runs", run.ID+".json"))
}

func TestPersistence_RejectsTraversal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newStore(t)

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := store.GetRun(ctx, id)
		assert.ErrorIs(t, err, persistence.ErrInvalidID, id)

		_, err = store.GetJourney(ctx, id)
		assert.ErrorIs(t, err, persistence.ErrInvalidID, id)
	}
}

func TestPersistence_SkipsCorruptFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, root := newStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "journeys", "broken.json"), []byte("{not json"), 0600))

	journeys, err := store.Journeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, journeys)
}

func TestPersistence_HealthCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, root := newStore(t)

	require.NoError(t, store.HealthCheck(ctx))
	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, store.HealthCheck(ctx))
}
