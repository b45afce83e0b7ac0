package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/linux-updater/internal/logger"
)

// DefaultFileName is the lock file created inside the log directory.
const DefaultFileName = "linux-updater.lock"

// Repository defines persistence operations for the run lock.
type Repository interface {
	Path() string
	Load(ctx context.Context) (*Lock, error)
	Create(ctx context.Context, lock *Lock) error
	Remove(ctx context.Context) error
}

// Lock identifies the process that owns the current run.
type Lock struct {
	PID       int       `yaml:"pid"`
	Hostname  string    `yaml:"hostname"`
	Username  string    `yaml:"username"`
	StartedAt time.Time `yaml:"started_at"`
}

// FileRepository persists the lock to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the lock file.
	path string
	// mu protects concurrent access to the lock file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no lock file exists.
	ErrNotFound = errors.New("lock not found")
	// ErrLocked is returned by Create when a lock file already exists.
	ErrLocked = errors.New("lock already held")
)

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the lock file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the lock from disk.
func (r *FileRepository) Load(_ context.Context) (*Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read lock file: %w", err)
	}

	var lock Lock
	if err = yaml.Unmarshal(contents, &lock); err != nil {
		return nil, fmt.Errorf("decode lock file: %w", err)
	}

	return &lock, nil
}

// Create writes the lock, failing with ErrLocked if the file already exists.
func (r *FileRepository) Create(_ context.Context, lock *Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, logger.DefaultFilePermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrLocked
		}

		return fmt.Errorf("create lock file: %w", err)
	}

	if _, err = file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("write lock file: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	return nil
}

// Remove deletes the lock. A missing file is not an error.
func (r *FileRepository) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}

	return nil
}
