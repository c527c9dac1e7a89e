package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestPressError_Error(t *testing.T) {
	err := &PressError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "capture not found",
	}

	expected := "NOT_FOUND: capture not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("date is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "date is required" {
		t.Errorf("Message = %q, want %q", err.Message, "date is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("capture", "01J0000000000000000000000")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "01J0000000000000000000000" {
		t.Errorf("Details[identifier] = %v", err.Details["identifier"])
	}
	if err.Details["kind"] != "capture" {
		t.Errorf("Details[kind] = %v, want capture", err.Details["kind"])
	}
}

func TestNewNotEnoughData(t *testing.T) {
	err := NewNotEnoughData("2026-03-14")

	if err.Code != ErrNotEnoughData {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotEnoughData)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
}

func TestNewInferenceTimeout_NamesMode(t *testing.T) {
	err := NewInferenceTimeout("remote", 2*time.Minute)

	if err.Code != ErrInferenceTimeout {
		t.Errorf("Code = %q, want %q", err.Code, ErrInferenceTimeout)
	}
	if err.Status != 504 {
		t.Errorf("Status = %d, want 504", err.Status)
	}
	if !strings.Contains(err.Error(), "remote") {
		t.Errorf("Error() = %q, want it to name the mode", err.Error())
	}
	if err.Details["timeout_ms"] != int64(120000) {
		t.Errorf("Details[timeout_ms] = %v, want 120000", err.Details["timeout_ms"])
	}
}

func TestNewBackendNotReady(t *testing.T) {
	err := NewBackendNotReady("local", "downloaded")

	if err.Code != ErrBackendNotReady {
		t.Errorf("Code = %q, want %q", err.Code, ErrBackendNotReady)
	}
	if !strings.Contains(err.Message, "downloaded") {
		t.Errorf("Message = %q, want it to name the status", err.Message)
	}
}

func TestNewInferenceFailed_Unwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewInferenceFailed("remote", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		originalErr := fmt.Errorf("database connection failed")
		err := NewInternal(originalErr)

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("capture", "x")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("capture", "x")
		if Is(err, ErrInternal) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-PressError")
		}
	})

	t.Run("wrapped PressError", func(t *testing.T) {
		wrapped := fmt.Errorf("refresh: %w", NewInferenceTimeout("local", time.Second))
		if !Is(wrapped, ErrInferenceTimeout) {
			t.Error("Is() = false, want true for wrapped PressError")
		}
		if pErr, ok := As(wrapped); !ok || pErr.Code != ErrInferenceTimeout {
			t.Errorf("As() = %v, %v", pErr, ok)
		}
	})
}
