package session

import (
	"context"
	"fmt"
	"time"

	"github.com/studentlink/portalsync/internal/models"
)

// FailureThreshold is the number of consecutive failed handshakes that puts
// a session into cooldown.
const FailureThreshold = 3

// defaultLockWait bounds how long TryLock polls before reporting busy.
const defaultLockWait = 2 * time.Second

// SessionRepository defines the persistence operations required by the Store.
type SessionRepository interface {
	// GetSession fetches the session row for the user; (nil, nil) when absent.
	GetSession(ctx context.Context, userID string) (*models.Session, error)
	// SaveSession inserts or updates the session row.
	SaveSession(ctx context.Context, s *models.Session) error
}

// AcquireResult is the session view handed to the orchestrator.
type AcquireResult struct {
	// Jar is the cached serialized cookie jar; nil for a new session.
	Jar []byte
	// IsNew is true when no session row existed for the user.
	IsNew bool
	// IsLocked is true while the session is in cooldown.
	IsLocked bool
	// ConsecutiveFailures is the current failed handshake count.
	ConsecutiveFailures int
}

// Store implements session acquisition, the handshake lock, and failure
// bookkeeping over a SessionRepository and a Locker.
type Store struct {
	repo     SessionRepository
	locker   Locker
	lockTTL  time.Duration
	lockWait time.Duration
	cooldown time.Duration
}

// NewStore constructs a Store. lockTTL bounds a crashed holder, cooldown is
// the lockout window after FailureThreshold consecutive failures.
func NewStore(repo SessionRepository, locker Locker, lockTTL, cooldown time.Duration) *Store {
	return &Store{
		repo:     repo,
		locker:   locker,
		lockTTL:  lockTTL,
		lockWait: defaultLockWait,
		cooldown: cooldown,
	}
}

// Acquire returns the cached session state for the user. It never contacts
// the portal; cooldown is evaluated against the stored locked_until.
func (s *Store) Acquire(ctx context.Context, userID string) (*AcquireResult, error) {
	sess, err := s.repo.GetSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	if sess == nil {
		return &AcquireResult{IsNew: true}, nil
	}

	locked := sess.LockedUntil != nil && time.Now().Before(*sess.LockedUntil)
	return &AcquireResult{
		Jar:                 sess.Jar,
		IsLocked:            locked,
		ConsecutiveFailures: sess.ConsecutiveFailures,
	}, nil
}

// TryLock serializes the login handshake for one user. It polls the locker
// until lockWait elapses, then returns models.ErrBusy. A busy result is
// distinct from cooldown: the caller may retry shortly.
func (s *Store) TryLock(ctx context.Context, userID string) (*LockHandle, error) {
	deadline := time.Now().Add(s.lockWait)
	for {
		handle, ok, err := s.locker.TryAcquire(ctx, "handshake:"+userID, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire handshake lock: %w", err)
		}
		if ok {
			return handle, nil
		}
		if time.Now().After(deadline) {
			return nil, models.ErrBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Persist records the outcome of a handshake. Success stores the jar, resets
// the failure counter and clears cooldown; failure increments the counter,
// capped at FailureThreshold, and starts cooldown once the cap is reached.
func (s *Store) Persist(ctx context.Context, userID string, jar []byte, success bool) error {
	sess, err := s.repo.GetSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if sess == nil {
		sess = &models.Session{UserID: userID}
	}

	if success {
		now := time.Now()
		sess.Jar = jar
		sess.ConsecutiveFailures = 0
		sess.LockedUntil = nil
		sess.LastSuccessAt = &now
	} else {
		if sess.ConsecutiveFailures < FailureThreshold {
			sess.ConsecutiveFailures++
		}
		if sess.ConsecutiveFailures >= FailureThreshold {
			until := time.Now().Add(s.cooldown)
			sess.LockedUntil = &until
		}
		if sess.Jar == nil {
			sess.Jar = []byte{}
		}
	}

	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
