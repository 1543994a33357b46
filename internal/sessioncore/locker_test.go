package sessioncore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLocalLockerSerializesPerSession(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	sessionID := uuid.New()

	release, err := locker.Lock(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	blocked := make(chan struct{})
	go func() {
		release2, err := locker.Lock(context.Background(), sessionID)
		if err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		release2()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatalf("second Lock should not have acquired while first is held")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatalf("second Lock never acquired after release")
	}
}

func TestLocalLockerTimesOut(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	sessionID := uuid.New()

	release, err := locker.Lock(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer release()

	if _, err := locker.Lock(context.Background(), sessionID); err == nil {
		t.Fatalf("expected lock acquisition to time out")
	}
}

func TestLocalLockerRespectsContextCancellation(t *testing.T) {
	locker := NewLocalLocker(5 * time.Second)
	sessionID := uuid.New()

	release, err := locker.Lock(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Lock(ctx, sessionID); err == nil {
		t.Fatalf("expected cancelled context to abort lock acquisition")
	}
}

func TestLocalLockerAllowsDifferentSessionsConcurrently(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	release1, err := locker.Lock(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Lock(1): %v", err)
	}
	defer release1()

	release2, err := locker.Lock(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Lock(2) for a different session should not block: %v", err)
	}
	release2()
}
