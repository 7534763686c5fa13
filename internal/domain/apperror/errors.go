// Package apperror defines the error kinds a run can end with.
//
// ConfigError, FetchError and CacheCorruptError abort a run before the cache
// is written. NotifyError is scoped to a single question.
package apperror

import (
	"errors"
	"fmt"
)

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type CacheCorruptError struct {
	Path string
	Err  error
}

func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("cache %s is corrupt: %v", e.Path, e.Err)
}

func (e *CacheCorruptError) Unwrap() error { return e.Err }

type NotifyError struct {
	QuestionID string
	StatusCode int
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notify question %s: status %d: %v", e.QuestionID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("notify question %s: %v", e.QuestionID, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// IsFatal reports whether err should stop the run. Anything that is not a
// NotifyError is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var notifyErr *NotifyError
	return !errors.As(err, &notifyErr)
}
