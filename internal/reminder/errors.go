package reminder

import (
	"errors"
	"fmt"
)

// The subsystem distinguishes three failure kinds:
//
//   - ValidationError: bad user input; replied to the user, never logged
//     as a fault.
//   - PersistenceError: the store could not be read or written; surfaced
//     to the command caller, or skips the tick in the scheduler.
//   - ResolutionError: recipient lookup failed; logged and degraded to
//     an empty snapshot.
//
// Nothing in this package is fatal.

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is user-input related.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "reminder store " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string { return "recipient resolution: " + e.Err.Error() }
func (e *ResolutionError) Unwrap() error { return e.Err }

// Lookup results for id-or-prefix matching.
var (
	ErrNotFound  = errors.New("reminder not found")
	ErrAmbiguous = errors.New("reminder id prefix is ambiguous")
)
