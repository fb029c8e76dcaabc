package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
)

//go:generate mockgen -destination=mocks/room_provisioner.go -package=mocks . RoomProvisioner

// RoomProvisioner creates video rooms and the tokens participants join them with.
type RoomProvisioner interface {
	CreateRoom(ctx context.Context, sessionID uuid.UUID) (*domain.RoomRef, error)
	IssueToken(ctx context.Context, roomID uuid.UUID, userID string, displayName string) (string, error)
}

type QueueInteractor interface {
	JoinQueue(ctx context.Context, userID string, prefs domain.Preferences, display domain.DisplayInfo) (*domain.Event, error)
	LeaveQueue(ctx context.Context, userID string) (*domain.Event, error)
	Heartbeat(ctx context.Context, userID string) (*domain.QueuePosition, error)
	QueueStatus(ctx context.Context, userID string) (*domain.QueuePosition, error)
}

type SessionInteractor interface {
	SessionAction(ctx context.Context, userID string, sessionID uuid.UUID, action domain.Action, reason string) (*domain.ActionResult, error)
	MarkConnected(ctx context.Context, userID string, sessionID uuid.UUID) (*domain.Session, error)
	GetSession(ctx context.Context, userID string, sessionID uuid.UUID) (*domain.Session, error)
}

// MatchTrigger runs matching passes until no further pair can be formed.
type MatchTrigger interface {
	TriggerMatching(ctx context.Context) (int, error)
}

// storeErr marks a backing-store failure as domain.ErrStoreUnavailable unless
// it is already classified or comes from the caller's context.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
