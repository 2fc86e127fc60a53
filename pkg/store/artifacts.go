package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown runs and artifact names.
var ErrNotFound = errors.New("artifact not found")

type ArtifactStoreConfig struct {
	Dir   string
	Names []string // artifact file names a run may hold
}

// ArtifactStore keeps each run's output files in their own directory,
// named by a random run ID.
type ArtifactStore struct {
	config ArtifactStoreConfig
}

func NewWithConfig(config ArtifactStoreConfig) (*ArtifactStore, error) {
	if config.Dir == "" {
		config.Dir = filepath.Join(os.TempDir(), "readmit")
	}
	if len(config.Names) == 0 {
		return nil, errors.New("at least one artifact name is required")
	}
	for _, name := range config.Names {
		if name == "" || filepath.Base(name) != name {
			return nil, fmt.Errorf("artifact name %q must be a plain file name", name)
		}
	}

	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	return &ArtifactStore{config: config}, nil
}

func (s *ArtifactStore) Dir() string { return s.config.Dir }

// NewRun allocates a directory for a run and returns its ID.
func (s *ArtifactStore) NewRun() (string, error) {
	runID := uuid.NewString()
	if err := os.Mkdir(filepath.Join(s.config.Dir, runID), 0o755); err != nil {
		return "", fmt.Errorf("failed to create run dir: %w", err)
	}
	return runID, nil
}

// Create opens a new artifact file for writing.
func (s *ArtifactStore) Create(runID, name string) (*os.File, error) {
	path, err := s.resolve(runID, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}
	return f, nil
}

// Path returns the location of an existing artifact.
func (s *ArtifactStore) Path(runID, name string) (string, error) {
	path, err := s.resolve(runID, name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// Remove deletes a run and everything in it.
func (s *ArtifactStore) Remove(runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return ErrNotFound
	}
	return os.RemoveAll(filepath.Join(s.config.Dir, runID))
}

// resolve only accepts canonical UUIDs and configured names, so the result
// always stays inside Dir.
func (s *ArtifactStore) resolve(runID, name string) (string, error) {
	id, err := uuid.Parse(runID)
	if err != nil || id.String() != runID {
		return "", ErrNotFound
	}
	if !slices.Contains(s.config.Names, name) {
		return "", ErrNotFound
	}
	return filepath.Join(s.config.Dir, runID, name), nil
}
