package sessioncore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// lockPollInterval is how often LockWithContext rechecks availability.
const lockPollInterval = 10 * time.Millisecond

// Locker serializes lifecycle transitions per session, one mutex per
// session id. The executor acquires it around the transition-and-persist
// sequence described in §4.4.
type Locker interface {
	Lock(ctx context.Context, sessionID uuid.UUID) (func(), error)
}

type sessionMutex struct {
	mu     sync.Mutex
	locked bool
}

// LocalLocker is an in-process Locker backed by a sync.Map of per-session
// mutexes, adapted from the teacher's SessionLocker: same poll-based
// timeout acquisition, generalized to return a release closure instead of
// paired Lock/Unlock calls so callers can't forget to unlock.
type LocalLocker struct {
	locks   sync.Map // map[uuid.UUID]*sessionMutex
	timeout time.Duration
}

// NewLocalLocker creates a LocalLocker with the given acquisition timeout.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LocalLocker{timeout: timeout}
}

func (l *LocalLocker) getOrCreate(sessionID uuid.UUID) *sessionMutex {
	if m, ok := l.locks.Load(sessionID); ok {
		return m.(*sessionMutex)
	}
	actual, _ := l.locks.LoadOrStore(sessionID, &sessionMutex{})
	return actual.(*sessionMutex)
}

// Lock blocks until the session's lock is free or the context is done or
// the configured timeout elapses, whichever comes first. It returns a
// release function to call when the caller is done.
func (l *LocalLocker) Lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	m := l.getOrCreate(sessionID)
	deadline := time.Now().Add(l.timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return func() {
				m.mu.Lock()
				m.locked = false
				m.mu.Unlock()
			}, nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, models.NewError(models.KindTimeout, "lock acquisition timeout", nil).WithContext("session_id", sessionID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
