package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// SessionTimeLayout names log files after the moment the run started.
	SessionTimeLayout = "20060102_150405"

	// SessionFileSuffix is appended to the timestamp in every log file name.
	SessionFileSuffix = "_update.log"

	// DefaultDirPermissions is used when creating the log directory.
	DefaultDirPermissions os.FileMode = 0o755

	// DefaultFilePermissions is used for the log file itself.
	DefaultFilePermissions os.FileMode = 0o644
)

var errEmptyDirectory = errors.New("log directory must be provided")

// Session is the append-only log of one run.
// Entries go to the console core and to the file.
// The file core always records debug entries, so command output is kept
// even when the console level is higher.
type Session struct {
	// path is the absolute path of the log file.
	path string
	// file is the open log file handle.
	file *os.File
	// created lists the directories OpenSession had to create, deepest first.
	created []string
	// logger writes to both the console and the file.
	logger *zap.SugaredLogger
	// closeOnce guards Close against double invocation from deferred paths.
	closeOnce sync.Once
	// closeErr is the result of the first Close call.
	closeErr error
}

// SessionFileName returns "<YYYYMMDD_HHMMSS>_update.log" for the given start time.
func SessionFileName(startedAt time.Time) string {
	return startedAt.Format(SessionTimeLayout) + SessionFileSuffix
}

// OpenSession creates the directory if needed and opens a new log file in it.
// Calling it repeatedly for the same directory never fails because the directory exists.
func OpenSession(dir string, startedAt time.Time, console zapcore.WriteSyncer) (*Session, error) {
	if dir == "" {
		return nil, errEmptyDirectory
	}

	dir = filepath.Clean(dir)
	created := missingDirs(dir)

	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, SessionFileName(startedAt))

	//nolint:gosec // Path is built from configuration and a timestamp.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, DefaultFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if console == nil {
		console = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewTee(
		NewCore(console, defaultLevel),
		NewCore(zapcore.AddSync(file), zap.DebugLevel),
	)

	return &Session{
		path:    path,
		file:    file,
		created: created,
		logger:  zap.New(core).Sugar(),
	}, nil
}

// missingDirs returns dir and each of its ancestors that does not exist yet.
func missingDirs(dir string) []string {
	var missing []string

	for current := dir; ; {
		if _, err := os.Stat(current); !errors.Is(err, os.ErrNotExist) {
			return missing
		}

		missing = append(missing, current)

		parent := filepath.Dir(current)
		if parent == current {
			return missing
		}

		current = parent
	}
}

// Path returns the log file location.
func (s *Session) Path() string {
	return s.path
}

// Logger returns the tee logger bound to this session.
func (s *Session) Logger() *zap.SugaredLogger {
	return s.logger
}

// Chown hands the log file, its directory and every directory OpenSession
// created to the given owner.
// Runs happen as root, but the log lives in the invoking user's home.
func (s *Session) Chown(uid, gid int) error {
	if uid < 0 || gid < 0 {
		return nil
	}

	dirs := s.created
	if logDir := filepath.Dir(s.path); !slices.Contains(dirs, logDir) {
		dirs = append([]string{logDir}, dirs...)
	}

	for _, dir := range dirs {
		if err := os.Chown(dir, uid, gid); err != nil {
			return fmt.Errorf("chown log directory: %w", err)
		}
	}

	if err := s.file.Chown(uid, gid); err != nil {
		return fmt.Errorf("chown log file: %w", err)
	}

	return nil
}

// Close flushes buffered entries and closes the file. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		// Sync on a terminal stdout reports EINVAL, so only the file matters.
		_ = s.logger.Sync()

		if err := s.file.Sync(); err != nil {
			s.closeErr = fmt.Errorf("sync log file: %w", err)
		}

		if err := s.file.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("close log file: %w", err)
		}
	})

	return s.closeErr
}
