package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents a bodypress error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"        // 400
	ErrFileNotFound         ErrorCode = "FILE_NOT_FOUND"         // 404
	ErrNotFound             ErrorCode = "NOT_FOUND"              // 404
	ErrBackendNotReady      ErrorCode = "BACKEND_NOT_READY"      // 409
	ErrModelNotDownloaded   ErrorCode = "MODEL_NOT_DOWNLOADED"   // 409
	ErrLifecycleBusy        ErrorCode = "LIFECYCLE_BUSY"         // 409
	ErrNotEnoughData        ErrorCode = "NOT_ENOUGH_DATA"        // 422
	ErrCancelled            ErrorCode = "CANCELLED"              // 499
	ErrInternal             ErrorCode = "INTERNAL"               // 500
	ErrBackendNotRegistered ErrorCode = "BACKEND_NOT_REGISTERED" // 501
	ErrInferenceFailed      ErrorCode = "INFERENCE_FAILED"       // 502
	ErrInferenceTimeout     ErrorCode = "INFERENCE_TIMEOUT"      // 504
)

// PressError represents a structured error with code, status, and details.
type PressError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *PressError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *PressError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PressError {
	return &PressError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record.
// kind names the record type ("capture", "journal entry", ...).
func NewNotFound(kind, identifier string) *PressError {
	return &PressError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *PressError {
	return &PressError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNotEnoughData creates a 422 error used when a journal day has no captures
// and live collection produced nothing either.
func NewNotEnoughData(date string) *PressError {
	return &PressError{
		Code:    ErrNotEnoughData,
		Status:  422,
		Message: fmt.Sprintf("not enough data yet for %s", date),
		Details: map[string]any{"date": date},
	}
}

// NewBackendNotRegistered creates a 501 error when no backend is wired for a mode.
func NewBackendNotRegistered(mode string) *PressError {
	return &PressError{
		Code:    ErrBackendNotRegistered,
		Status:  501,
		Message: fmt.Sprintf("no %s inference backend registered", mode),
		Details: map[string]any{"mode": mode},
	}
}

// NewBackendNotReady creates a 409 error when the local model is not loaded.
func NewBackendNotReady(mode, status string) *PressError {
	return &PressError{
		Code:    ErrBackendNotReady,
		Status:  409,
		Message: fmt.Sprintf("%s inference backend not ready (model status: %s)", mode, status),
		Details: map[string]any{"mode": mode, "status": status},
	}
}

// NewModelNotDownloaded creates a 409 error when activation is attempted
// before the model is on the device.
func NewModelNotDownloaded(ref, status string) *PressError {
	return &PressError{
		Code:    ErrModelNotDownloaded,
		Status:  409,
		Message: fmt.Sprintf("model %q must be downloaded before activation (status: %s)", ref, status),
		Details: map[string]any{"model": ref, "status": status},
	}
}

// NewLifecycleBusy creates a 409 error when a lifecycle operation overlaps a download.
func NewLifecycleBusy(op string) *PressError {
	return &PressError{
		Code:    ErrLifecycleBusy,
		Status:  409,
		Message: fmt.Sprintf("cannot %s while a model download is in progress", op),
	}
}

// NewInferenceTimeout creates a 504 error tagged with the active mode.
func NewInferenceTimeout(mode string, after time.Duration) *PressError {
	return &PressError{
		Code:    ErrInferenceTimeout,
		Status:  504,
		Message: fmt.Sprintf("%s inference timed out after %s", mode, after),
		Details: map[string]any{"mode": mode, "timeout_ms": after.Milliseconds()},
	}
}

// NewInferenceFailed wraps a backend error.
func NewInferenceFailed(mode string, err error) *PressError {
	msg := fmt.Sprintf("%s inference failed", mode)
	if err != nil {
		msg = fmt.Sprintf("%s inference failed: %v", mode, err)
	}
	return &PressError{
		Code:    ErrInferenceFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"mode": mode},
		cause:   err,
	}
}

// NewCancelled creates a 499 error for an operation cancelled by its caller.
func NewCancelled(op string) *PressError {
	return &PressError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error is kept in Details for logging.
func NewInternal(err error) *PressError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &PressError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a PressError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PressError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// As returns the PressError in err's chain, if any.
func As(err error) (*PressError, bool) {
	var pErr *PressError
	ok := stderrors.As(err, &pErr)
	return pErr, ok
}
