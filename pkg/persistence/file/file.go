// Package file provides file-based persistence for journeys and runs.
//
// Every record is one JSON document: journeys live under <root>/journeys and
// runs under <root>/runs, each named after its id.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/journey/pkg/persistence"
	json "github.com/goccy/go-json"
)

const (
	journeysDir = "journeys"
	runsDir     = "runs"
	extension   = ".json"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
	// mu serialises writers so read-modify-write updates of a run are atomic
	// within the process.
	mu sync.RWMutex
}

// NewPersistence creates the store rooted at root. A "file://" prefix is accepted.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{journeysDir, runsDir} {
		err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0750)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory still exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

// validateID rejects ids that would escape the record directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (fp *Persistence) path(dir, id string) string {
	return filepath.Join(fp.root, dir, id+extension)
}

func (fp *Persistence) exists(dir, id string) bool {
	_, err := os.Stat(fp.path(dir, id))

	return err == nil
}

// read decodes the record into target, returning os.ErrNotExist when absent.
func (fp *Persistence) read(dir, id string, target any) error {
	data, err := os.ReadFile(fp.path(dir, id)) // #nosec G304 -- id is validated before use
	if err != nil {
		return err
	}

	return json.Unmarshal(data, target)
}

// write replaces the record atomically through a temporary file and rename.
func (fp *Persistence) write(dir, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(filepath.Join(fp.root, dir), "."+id+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	err = os.Rename(tmp.Name(), fp.path(dir, id))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s: %w", id, err)
	}

	return nil
}

// each decodes every record of dir. Unreadable files are skipped.
func each[T any](fp *Persistence, dir string, visit func(*T)) error {
	entries, err := os.ReadDir(filepath.Join(fp.root, dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to read %s directory: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, extension) {
			continue
		}

		record := new(T)
		if err := fp.read(dir, strings.TrimSuffix(name, extension), record); err != nil {
			continue
		}

		visit(record)
	}

	return nil
}
