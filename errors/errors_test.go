package errors

import (
	"testing"
)

func TestSentinelIdentity(t *testing.T) {
	tests := []struct {
		name     string
		sentinel error
	}{
		{"validation", ErrValidation},
		{"not found", ErrNotFound},
		{"spawn failure", ErrSpawnFailure},
		{"timeout", ErrTimeout},
		{"cancelled", ErrCancelled},
		{"io failure", ErrIOFailure},
		{"terminal", ErrTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.sentinel, "additional context")
			if !Is(wrapped, tt.sentinel) {
				t.Errorf("wrapped error lost sentinel identity: %v", wrapped)
			}
			doubly := Wrapf(wrapped, "operation %s", "run")
			if !Is(doubly, tt.sentinel) {
				t.Errorf("doubly wrapped error lost sentinel identity: %v", doubly)
			}
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	if Is(ErrTimeout, ErrCancelled) {
		t.Error("ErrTimeout must not match ErrCancelled")
	}
	if Is(ErrValidation, ErrNotFound) {
		t.Error("ErrValidation must not match ErrNotFound")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("timeout %dms exceeds ceiling", 900000)
	if !IsValidation(err) {
		t.Errorf("NewValidationError did not produce a validation error: %v", err)
	}
	if IsNotFound(err) {
		t.Error("validation error must not be a not-found error")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("execution %s", "deadbeef")
	if !IsNotFound(err) {
		t.Errorf("NewNotFoundError did not produce a not-found error: %v", err)
	}
	if IsValidation(err) {
		t.Error("not-found error must not be a validation error")
	}
}
