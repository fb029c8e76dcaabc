package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionVibe   Action = "vibe"
	ActionSkip   Action = "skip"
	ActionReport Action = "report"
)

const maxReportReasonLength = 500

func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionVibe, ActionSkip, ActionReport:
		return a, nil
	}
	return "", fmt.Errorf("%w: unsupported action %q", ErrValidation, raw)
}

// ActionOutcome is an append-only audit row, unique per (session, user, action).
type ActionOutcome struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	UserID       string
	Action       Action
	ReportReason string
	Points       int
	CreatedAt    time.Time
}

func NewActionOutcome(sessionID uuid.UUID, userID string, action Action, reason string, points int, now time.Time) *ActionOutcome {
	return &ActionOutcome{
		ID:           uuid.New(),
		SessionID:    sessionID,
		UserID:       userID,
		Action:       action,
		ReportReason: reason,
		Points:       points,
		CreatedAt:    now,
	}
}

func NormalizeReportReason(action Action, reason string) (string, error) {
	if action != ActionReport {
		return "", nil
	}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) > maxReportReasonLength {
		return "", fmt.Errorf("%w: report reason is too long", ErrValidation)
	}
	return reason, nil
}

// ActionResult is returned synchronously to the actor.
type ActionResult struct {
	SessionID uuid.UUID
	Action    Action
	Points    int
	Mutual    bool
	Status    SessionStatus
	MatchID   *uuid.UUID
	Duplicate bool
}

type PointsPolicy struct {
	Vibe       int
	MutualVibe int
	Skip       int
	Report     int
}

func DefaultPointsPolicy() PointsPolicy {
	return PointsPolicy{Vibe: 25, MutualVibe: 50, Skip: 10, Report: 0}
}

func (p PointsPolicy) For(action Action, mutual bool) int {
	switch action {
	case ActionVibe:
		if mutual {
			return p.MutualVibe
		}
		return p.Vibe
	case ActionSkip:
		return p.Skip
	case ActionReport:
		return p.Report
	}
	return 0
}
