package raid

import (
	"errors"
	"fmt"
)

// ValidationError marks input the user can correct. Commands show the
// message verbatim; nothing else treats it as fatal.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is user-correctable.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var (
	ErrNotFound  = errors.New("raid not found")
	ErrDespawned = errors.New("raid already despawned")
	ErrCancelled = errors.New("raid cancelled")
)
