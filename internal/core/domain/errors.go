package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a client-side error with a structured error code.
// Codes have the form DG-<AREA>-<NNNN>; the numeric part mirrors the HTTP
// status family where one applies.
type DomainError struct {
	Code    string // Error code (e.g., "DG-AUTH-4010")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrNoSession indicates no credential is installed.
	ErrNoSession = NewDomainError("DG-SESS-4040", "no active session")

	// ErrSessionExpired indicates the client detected expiry without server involvement.
	ErrSessionExpired = NewDomainError("DG-SESS-4011", "session expired")

	// ErrSessionInvalid indicates identity, credential or expiry failed validation.
	ErrSessionInvalid = NewDomainError("DG-SESS-4001", "invalid session data")

	// ErrRestoreFailed indicates persisted session state could not be decoded.
	ErrRestoreFailed = NewDomainError("DG-SESS-4002", "persisted session is corrupt")
)

// ============================================================================
// Authorization Errors (AUTH)
// ============================================================================

var (
	// ErrAuthorizationExpired indicates the server rejected the credential (HTTP 401).
	ErrAuthorizationExpired = NewDomainError("DG-AUTH-4010", "authorization expired")

	// ErrBadCredentials indicates the login call was rejected.
	ErrBadCredentials = NewDomainError("DG-AUTH-4011", "invalid account or password")

	// ErrForbidden indicates the credential is valid but the resource is not permitted (HTTP 403).
	ErrForbidden = NewDomainError("DG-AUTH-4030", "permission denied")
)

// ============================================================================
// Transport and Storage Errors (NET, STOR)
// ============================================================================

var (
	// ErrUnreachable indicates the backend could not be reached.
	ErrUnreachable = NewDomainError("DG-NET-5030", "backend unreachable")

	// ErrBadResponse indicates the backend answered with an unexpected body.
	ErrBadResponse = NewDomainError("DG-NET-5020", "malformed backend response")

	// ErrStorage indicates the durable local storage failed.
	ErrStorage = NewDomainError("DG-STOR-5001", "local storage error")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("DG-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("DG-ARG-1002", "missing required argument")
)
