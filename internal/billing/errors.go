package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMilkType is returned when no rate is configured for a milk type.
	ErrUnknownMilkType = errors.New("unknown milk type")

	// ErrInvalidQuantity is returned for negative milk or extra quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidRate is returned for a milk line carrying a negative recorded rate.
	ErrInvalidRate = errors.New("invalid rate")

	// ErrInvalidExtraLine is returned for a stored extra with an empty name or a negative rate.
	ErrInvalidExtraLine = errors.New("invalid extra line")

	// ErrCustomerMismatch is returned when an invoice is built for the wrong customer.
	ErrCustomerMismatch = errors.New("customer mismatch")

	// ErrInvalidPeriod is returned for malformed month tokens or inverted bounds.
	ErrInvalidPeriod = errors.New("invalid period")
)

// ValidationError wraps one of the sentinel errors with details about the
// offending input.
type ValidationError struct {
	Err     error
	Details string
}

func (e *ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(err error, format string, args ...any) error {
	return &ValidationError{Err: err, Details: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is one of the engine's input validation failures.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
