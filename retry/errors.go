package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxRetriesExceeded is matched by errors.Is when every attempt failed.
	ErrMaxRetriesExceeded = errors.New("retry: max retries exceeded")

	// ErrAttemptTimeout marks an attempt that outlived its per-attempt deadline.
	ErrAttemptTimeout = errors.New("retry: attempt timed out")
)

// MaxRetriesExceededError wraps the last error after the strategy gave up.
type MaxRetriesExceededError struct {
	Attempts int
	Err      error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("retry: max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMaxRetriesExceeded.
func (e *MaxRetriesExceededError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded
}

// Class tells Call whether an error is worth another attempt.
type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type classifiedError struct {
	err   error
	class Class
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient marks err as recoverable by another attempt.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient}
}

// Terminal marks err as final: Call returns it without further attempts.
// A contract revert is the canonical terminal error.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal}
}

// IsTerminal reports whether err, or any error it wraps, was marked Terminal.
func IsTerminal(err error) bool {
	return classOf(err) == ClassTerminal
}

// IsTransient reports whether err was marked Transient.
func IsTransient(err error) bool {
	return classOf(err) == ClassTransient
}

func classOf(err error) Class {
	var marked *classifiedError
	if errors.As(err, &marked) {
		return marked.class
	}
	return ""
}
