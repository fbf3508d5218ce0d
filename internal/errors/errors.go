package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Identity errors
	ErrSilentAuthFailure      = errors.New("silent authentication failed")
	ErrInteractiveAuthFailure = errors.New("interactive authentication failed")
	ErrAuthorizationRejected  = errors.New("authorization rejected")
	ErrRequestAbandoned       = errors.New("request abandoned for interactive authentication")
	ErrNoActiveSession        = errors.New("no active session")

	// Flow errors
	ErrFlowNotFound = errors.New("authorization flow not found")
	ErrFlowExpired  = errors.New("authorization flow expired")
	ErrInvalidNonce = errors.New("invalid nonce")

	// General errors
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
