package models

import (
	"errors"
	"testing"
)

func TestWithContextDoesNotMutateReceiver(t *testing.T) {
	base := ErrNotFound
	derived := base.WithContext("session_id", "abc")

	if len(base.Context) != 0 {
		t.Fatalf("expected sentinel ErrNotFound to remain unmodified, got context %+v", base.Context)
	}
	if derived.Context["session_id"] != "abc" {
		t.Fatalf("expected derived error to carry session_id context, got %+v", derived.Context)
	}
}

func TestWithContextChainsWithoutLosingEarlierKeys(t *testing.T) {
	err := NewError(KindValidation, "bad input", nil).
		WithContext("field", "name").
		WithContext("value", "")

	if err.Context["field"] != "name" || err.Context["value"] != "" {
		t.Fatalf("expected both context keys to survive chaining, got %+v", err.Context)
	}
}

func TestIsKindMatchesWrappedError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(KindRepository, "write failed", cause)

	if !IsKind(err, KindRepository) {
		t.Fatalf("expected IsKind to match KindRepository")
	}
	if IsKind(err, KindNotFound) {
		t.Fatalf("expected IsKind to not match an unrelated kind")
	}
	if !errors.Is(err, err) {
		t.Fatalf("expected error to equal itself under errors.Is")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindClientConnection, "connect failed", cause)

	msg := err.Error()
	if msg == "" {
		t.Fatalf("expected non-empty error message")
	}
	if !errors.Is(err.Unwrap(), cause) {
		t.Fatalf("expected Unwrap to return the cause")
	}
}
