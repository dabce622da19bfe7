// Package badgeerr defines the error kinds shared by the credential engine.
//
// Construction-time functions (key loading, multikey documents, credential
// building, token signing) return these errors. Verification-time functions
// report failures as booleans or checks instead.
package badgeerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	// KindEncoding indicates malformed hex or base58 input.
	KindEncoding Kind = "ENCODING_ERROR"

	// KindKeyValidation indicates a malformed key id, multibase key,
	// wrong key length or wrong multicodec prefix.
	KindKeyValidation Kind = "KEY_VALIDATION_ERROR"

	// KindKeyConfiguration indicates missing or invalid process configuration.
	KindKeyConfiguration Kind = "KEY_CONFIGURATION_ERROR"

	// KindKeyNotFound indicates a requested key id could not be resolved.
	KindKeyNotFound Kind = "KEY_NOT_FOUND"

	// KindProofVerification indicates a signature mismatch on token verification.
	KindProofVerification Kind = "PROOF_VERIFICATION_ERROR"

	// KindSchemaValidation indicates structural non-conformance of a credential.
	KindSchemaValidation Kind = "SCHEMA_VALIDATION_ERROR"
)

// Error is a credential engine error carrying a Kind.
type Error struct {
	// Kind is one of the Kind* constants.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks. Matching is by Kind only.
var (
	ErrEncoding          = New(KindEncoding, "malformed encoding")
	ErrKeyValidation     = New(KindKeyValidation, "invalid key")
	ErrKeyConfiguration  = New(KindKeyConfiguration, "invalid key configuration")
	ErrKeyNotFound       = New(KindKeyNotFound, "key not found")
	ErrProofVerification = New(KindProofVerification, "proof verification failed")
	ErrSchemaValidation  = New(KindSchemaValidation, "schema validation failed")
)

// As returns err as an *Error if it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err is not an Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
