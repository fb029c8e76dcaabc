package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrIcebreakerNotFound = errors.New("no active icebreaker")
	ErrMatchNotFound      = errors.New("match not found")
	ErrActionNotFound     = errors.New("action not found")
	ErrLockNotHeld        = errors.New("lock not held")
)

// QueueStore is the shared, order-preserving set of waiting participants.
// Every mutation is a single atomic operation against the backing store.
type QueueStore interface {
	// Add enqueues the entry. Re-adding a queued user is a no-op that reports
	// the current 1-based position with added=false.
	Add(ctx context.Context, entry *domain.QueueEntry) (position int, added bool, err error)
	Remove(ctx context.Context, userID string) (bool, error)
	// RemovePair dequeues both users or neither.
	RemovePair(ctx context.Context, a, b string) (bool, error)
	PositionOf(ctx context.Context, userID string) (int, bool, error)
	// Snapshot returns up to limit entries in FIFO order; limit <= 0 means all.
	Snapshot(ctx context.Context, limit int) ([]*domain.QueueEntry, error)
	Len(ctx context.Context) (int, error)
	PurgeOlderThan(ctx context.Context, ts time.Time) ([]*domain.QueueEntry, error)
	Touch(ctx context.Context, userID string, at time.Time) (bool, error)
	StaleSince(ctx context.Context, before time.Time) ([]string, error)
}

// PairingStore remembers recent pairings in both directions for a TTL.
type PairingStore interface {
	Record(ctx context.Context, a, b string, ttl time.Duration) error
	Exists(ctx context.Context, a, b string) (bool, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

// MatchLocker hands out the fleet-wide matching lock. Acquire returns
// domain.ErrLockNotAcquired when another holder is active.
type MatchLocker interface {
	Acquire(ctx context.Context, ttl time.Duration) (Lock, error)
	// ClearOrphaned removes a lock that has lost its expiry.
	ClearOrphaned(ctx context.Context) (bool, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	// ActiveForUser returns the user's live session or domain.ErrSessionNotFound.
	ActiveForUser(ctx context.Context, userID string) (*domain.Session, error)
	// Transition moves the session to `to` only if its status is one of from.
	Transition(ctx context.Context, id uuid.UUID, from []domain.SessionStatus, to domain.SessionStatus, reason string, at time.Time) (bool, error)
	// MarkMatched completes a live session as matched unless a report was recorded for it.
	MarkMatched(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListLiveStartedBefore(ctx context.Context, before time.Time) ([]*domain.Session, error)
}

type ActionRepository interface {
	// Append inserts the outcome unless (session, user, action) already exists.
	Append(ctx context.Context, outcome *domain.ActionOutcome) (bool, error)
	Get(ctx context.Context, sessionID uuid.UUID, userID string, action domain.Action) (*domain.ActionOutcome, error)
	HasReport(ctx context.Context, sessionID uuid.UUID) (bool, error)
	SetPoints(ctx context.Context, id uuid.UUID, points int) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.ActionOutcome, error)
	PointsForUser(ctx context.Context, userID string) (int, error)
}

type MatchRepository interface {
	Upsert(ctx context.Context, a, b string, sessionID uuid.UUID, at time.Time) (*domain.Match, error)
	GetByPair(ctx context.Context, a, b string) (*domain.Match, error)
}

type IcebreakerRepository interface {
	RandomActive(ctx context.Context) (*domain.Icebreaker, error)
}

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
}

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
