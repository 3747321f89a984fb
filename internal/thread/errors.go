package thread

import (
	"errors"
	"fmt"
)

// ValidationError reports a request that cannot be served as given.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ParseError reports a single message that could not be turned into a
// ThreadRecord. The engine logs and skips such messages.
type ParseError struct {
	Ref string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message %s: %v", e.Ref, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
