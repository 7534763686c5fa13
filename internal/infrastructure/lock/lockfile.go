// Package lock keeps two runs from working on the same cache file.
//
// The lock is a plain file created with O_EXCL next to the cache. It holds
// the owner's PID and acquisition time so a lock left behind by a crashed
// run can be detected and taken over.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const DefaultStaleAfter = 10 * time.Minute

// Lock is a held run lock.
type Lock struct {
	path     string
	acquired bool
}

// HeldError is returned when another live run owns the lock.
type HeldError struct {
	Path  string
	PID   int
	Since time.Time
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("lock %s is held", e.Path)
	if e.PID > 0 {
		msg += fmt.Sprintf(" by pid %d", e.PID)
	}
	if !e.Since.IsZero() {
		msg += fmt.Sprintf(" since %s", e.Since.UTC().Format(time.RFC3339))
	}
	return msg
}

// Acquire creates the lock file at path. An existing lock older than
// staleAfter, or one whose owner is gone, is taken over and acquisition is
// retried once.
func Acquire(path string, staleAfter time.Duration) (*Lock, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
		}
	}

	for attempt := 0; ; attempt++ {
		lock, err := create(path)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
		}

		held := inspect(path)
		if attempt > 0 || !isStale(path, held, staleAfter) {
			return nil, held
		}
		if err := takeOver(path, staleAfter); err != nil {
			return nil, err
		}
	}
}

// takeOver moves the lock at path aside and deletes it only if the moved file
// is still stale. Another run may have replaced the stale file after it was
// inspected; that live lock is linked back into place and reported as held.
func takeOver(path string, staleAfter time.Duration) error {
	aside := fmt.Sprintf("%s.stale.%d.%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to move stale lock %s: %w", path, err)
	}

	if held := inspect(aside); !isStale(aside, held, staleAfter) {
		if err := os.Link(aside, path); err != nil && !errors.Is(err, os.ErrExist) {
			if err := os.Rename(aside, path); err != nil {
				return fmt.Errorf("failed to restore lock %s: %w", path, err)
			}
		}
		os.Remove(aside)
		held.Path = path
		return held
	}

	if err := os.Remove(aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale lock %s: %w", aside, err)
	}
	return nil
}

func create(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	info := fmt.Sprintf("pid=%d\nacquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_, writeErr := file.WriteString(info)
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock information to %s: %w", path, err)
	}

	return &Lock{path: path, acquired: true}, nil
}

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || !l.acquired {
		return nil
	}
	l.acquired = false

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	return nil
}

func (l *Lock) Path() string { return l.path }

func inspect(path string) *HeldError {
	held := &HeldError{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return held
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil {
				held.PID = pid
			}
		case "acquired":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				held.Since = t
			}
		}
	}
	return held
}

func isStale(path string, held *HeldError, staleAfter time.Duration) bool {
	since := held.Since
	if since.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			// vanished between the create attempt and now
			return true
		}
		since = info.ModTime()
	}
	if time.Since(since) > staleAfter {
		return true
	}
	return held.PID > 0 && !isProcessRunning(held.PID)
}

func isProcessRunning(pid int) bool {
	// signal 0 is not supported on windows; rely on the age check there
	if runtime.GOOS == "windows" {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
