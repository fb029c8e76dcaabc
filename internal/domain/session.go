package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusConnecting       SessionStatus = "connecting"
	SessionStatusActive           SessionStatus = "active"
	SessionStatusCompleted        SessionStatus = "completed"
	SessionStatusCompletedMatched SessionStatus = "completed_matched"
)

// LiveSessionStatuses are the statuses in which participant actions still drive transitions.
var LiveSessionStatuses = []SessionStatus{SessionStatusConnecting, SessionStatusActive}

func (s SessionStatus) IsLive() bool {
	return s == SessionStatusConnecting || s == SessionStatusActive
}

const (
	EndReasonSkip       = "skip"
	EndReasonReport     = "report"
	EndReasonTimeout    = "timeout"
	EndReasonMutualVibe = "mutual_vibe"
)

// Session is a timed one-on-one video encounter between two queued participants.
type Session struct {
	ID           uuid.UUID
	ParticipantA string
	ParticipantB string
	RoomID       uuid.UUID
	RoomURL      string
	Status       SessionStatus
	IcebreakerID *uuid.UUID
	Icebreaker   string
	AnonymousA   bool
	AnonymousB   bool
	StartedAt    time.Time
	EndedAt      *time.Time
	EndReason    string
}

func NewSession(id uuid.UUID, a, b *QueueEntry, room *RoomRef, icebreaker *Icebreaker, now time.Time) *Session {
	s := &Session{
		ID:           id,
		ParticipantA: a.UserID,
		ParticipantB: b.UserID,
		Status:       SessionStatusConnecting,
		AnonymousA:   a.Preferences.Anonymous,
		AnonymousB:   b.Preferences.Anonymous,
		StartedAt:    now,
	}
	if room != nil {
		s.RoomID = room.RoomID
		s.RoomURL = room.JoinURL
	}
	if icebreaker != nil {
		id := icebreaker.ID
		s.IcebreakerID = &id
		s.Icebreaker = icebreaker.Prompt
	}
	return s
}

func (s *Session) HasParticipant(userID string) bool {
	return userID != "" && (s.ParticipantA == userID || s.ParticipantB == userID)
}

// Counterpart returns the other participant, or "" if userID is not in the session.
func (s *Session) Counterpart(userID string) string {
	switch userID {
	case s.ParticipantA:
		return s.ParticipantB
	case s.ParticipantB:
		return s.ParticipantA
	}
	return ""
}

func (s *Session) IsAnonymous(userID string) bool {
	switch userID {
	case s.ParticipantA:
		return s.AnonymousA
	case s.ParticipantB:
		return s.AnonymousB
	}
	return false
}

func (s *Session) EndsAt(duration time.Duration) time.Time {
	return s.StartedAt.Add(duration)
}
