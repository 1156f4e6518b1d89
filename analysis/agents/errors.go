package agents

import (
	"errors"
	"fmt"
)

// RecoverableError marks a failure worth retrying: gateway timeouts, transient
// upstream hiccups. The orchestrator retries these with backoff and records a
// failed section once retries are exhausted; the run itself continues.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("recoverable: %v", e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// Recoverable wraps err as a RecoverableError.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Err: err}
}

// FatalError marks a contract violation inside an agent. It aborts the whole
// run immediately.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsRecoverable reports whether err should be retried rather than abort the run.
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return errors.As(err, &re)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
