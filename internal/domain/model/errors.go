package model

import "fmt"

// ValidationError indicates missing or malformed caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// InvalidCredentialError indicates the presented key is unknown or inactive.
type InvalidCredentialError struct {
	Message string
}

func (e *InvalidCredentialError) Error() string { return e.Message }

// NotFoundError indicates the referenced credential does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a uniqueness violation on insert.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// StorageError indicates a durability-layer failure. Err holds the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidCredential creates an InvalidCredentialError with a formatted message.
func ErrInvalidCredential(format string, args ...any) *InvalidCredentialError {
	return &InvalidCredentialError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrStorage wraps err as a StorageError for operation op.
func ErrStorage(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
