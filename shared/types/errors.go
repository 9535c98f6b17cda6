package types

import "fmt"

// ValidationError indicates invalid profile fields. It is raised before any I/O.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError indicates an unknown profile or turn id.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AlreadyInProgressError indicates a connectivity test is already running for the profile.
type AlreadyInProgressError struct {
	Message string
}

func (e *AlreadyInProgressError) Error() string { return e.Message }

// SessionBusyError indicates the session is still processing a previous question.
type SessionBusyError struct {
	Message string
}

func (e *SessionBusyError) Error() string { return e.Message }

// NoActiveConnectionError indicates no usable connection was selected.
type NoActiveConnectionError struct {
	Message string
}

func (e *NoActiveConnectionError) Error() string { return e.Message }

// NothingToExportError indicates an export was requested for an empty result.
type NothingToExportError struct {
	Message string
}

func (e *NothingToExportError) Error() string { return e.Message }

// BackendExecutionError wraps a driver level failure: authentication,
// timeout, or a statement rejected by the server.
type BackendExecutionError struct {
	Message string
	Err     error
}

func (e *BackendExecutionError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *BackendExecutionError) Unwrap() error { return e.Err }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAlreadyInProgress creates an AlreadyInProgressError with a formatted message.
func ErrAlreadyInProgress(format string, args ...interface{}) *AlreadyInProgressError {
	return &AlreadyInProgressError{Message: fmt.Sprintf(format, args...)}
}

// ErrSessionBusy creates a SessionBusyError with a formatted message.
func ErrSessionBusy(format string, args ...interface{}) *SessionBusyError {
	return &SessionBusyError{Message: fmt.Sprintf(format, args...)}
}

// ErrNoActiveConnection creates a NoActiveConnectionError with a formatted message.
func ErrNoActiveConnection(format string, args ...interface{}) *NoActiveConnectionError {
	return &NoActiveConnectionError{Message: fmt.Sprintf(format, args...)}
}

// ErrNothingToExport creates a NothingToExportError with a formatted message.
func ErrNothingToExport(format string, args ...interface{}) *NothingToExportError {
	return &NothingToExportError{Message: fmt.Sprintf(format, args...)}
}

// ErrBackendExecution wraps err in a BackendExecutionError.
func ErrBackendExecution(err error, format string, args ...interface{}) *BackendExecutionError {
	return &BackendExecutionError{Message: fmt.Sprintf(format, args...), Err: err}
}
