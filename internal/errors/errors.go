package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the service. Handlers and the collaboration
// hub map these onto wire-level error messages and HTTP status codes.
var (
	// Connection-time authentication errors (terminal for that connection)
	ErrNoCredential      = errors.New("no credential provided")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrIdentityNotFound  = errors.New("identity not found")

	// Account errors
	ErrInvalidLogin = errors.New("invalid email or password")
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")

	// Document / room errors
	ErrDocumentNotFound = errors.New("document not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrNotJoined        = errors.New("session not joined to a document")
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
