package forms

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// ErrLockTimeout is returned when acquiring a form file lock times out
var ErrLockTimeout = fmt.Errorf("timeout acquiring form file lock")

const lockRetryInterval = 100 * time.Millisecond

// Load reads and parses the form at path under a shared lock. The
// relay shares form files with external editors, so every read locks.
func Load(path string) (*Form, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	lock := flock.New(path)
	locked, err := lock.TryRLock()
	for start := time.Now(); err == nil && !locked && time.Since(start) < 5*time.Second; {
		time.Sleep(lockRetryInterval)
		locked, err = lock.TryRLock()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var form Form
	if err := yaml.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("failed to parse form %s: %w", path, err)
	}
	return &form, nil
}

// Save writes the form to path atomically: marshal, write a unique temp
// file, fsync, rename into place, all under an exclusive lock
func Save(path string, form *Form) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create form directory: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	for start := time.Now(); err == nil && !locked && time.Since(start) < 5*time.Second; {
		time.Sleep(lockRetryInterval)
		locked, err = lock.TryLock()
	}
	if err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()

	data, err := yaml.Marshal(form)
	if err != nil {
		return fmt.Errorf("failed to marshal form: %w", err)
	}

	tempFile := fmt.Sprintf("%s.%d.%d.tmp", path, os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if f, err := os.OpenFile(tempFile, os.O_RDWR, 0o644); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}

	if err := os.Rename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename form file: %w", err)
	}

	return nil
}
