package store

import (
	"errors"
	"fmt"
)

// NameConflictError is returned by IdentityStore.Create when the name is
// already enrolled.
type NameConflictError struct {
	Name string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("identity %q already exists", e.Name)
}

// TransientError wraps a backend I/O failure that a caller may retry,
// such as a lost connection or a timed-out query.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
