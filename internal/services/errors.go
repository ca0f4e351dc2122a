package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps field-level problems with a submitted record.
	ErrValidation = errors.New("validation failed")
	// ErrRejected marks a well-formed request that breaks a business rule,
	// such as pairing two birds of the same gender.
	ErrRejected = errors.New("request rejected")
)

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}
