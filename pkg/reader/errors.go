package reader

import (
	"errors"
	"fmt"
)

// ErrInactive is returned for reads against a version whose contract is the disabled sentinel.
var ErrInactive = errors.New("contract version is inactive")

// TransientReadError wraps any RPC read failure. Callers retry it.
type TransientReadError struct {
	Op  string
	Err error
}

func (e *TransientReadError) Error() string {
	return fmt.Sprintf("transient read error in %s: %v", e.Op, e.Err)
}

func (e *TransientReadError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable read failure.
func IsTransient(err error) bool {
	var te *TransientReadError
	return errors.As(err, &te)
}

func transient(op string, err error) error {
	return &TransientReadError{Op: op, Err: err}
}
