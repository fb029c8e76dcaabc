package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

type EventType string

const (
	EventQueueJoined         EventType = "queue-joined"
	EventQueuePositionUpdate EventType = "queue-position-update"
	EventQueueLeft           EventType = "queue-left"
	EventMatchFound          EventType = "match-found"
	EventActionResult        EventType = "action-result"
	EventMatchConfirmed      EventType = "match-confirmed"
	EventSessionEnded        EventType = "session-ended"
	EventError               EventType = "error"
)

const (
	QueueLeftReasonUser    = "user"
	QueueLeftReasonTimeout = "timeout"
)

// Event is a flat notification delivered on a participant's topic.
// Delivery is at-least-once; ID lets consumers drop duplicates.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`

	Position  int    `json:"position,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`

	SessionID            string             `json:"session_id,omitempty"`
	RoomURL              string             `json:"room_url,omitempty"`
	RoomToken            string             `json:"room_token,omitempty"`
	ICEServers           []webrtc.ICEServer `json:"ice_servers,omitempty"`
	Icebreaker           string             `json:"icebreaker,omitempty"`
	EndsAt               *time.Time         `json:"ends_at,omitempty"`
	CounterpartID        string             `json:"counterpart_id,omitempty"`
	CounterpartName      string             `json:"counterpart_name,omitempty"`
	CounterpartPhotoURL  string             `json:"counterpart_photo_url,omitempty"`
	CounterpartAnonymous bool               `json:"counterpart_anonymous,omitempty"`

	Action  string `json:"action,omitempty"`
	Points  int    `json:"points,omitempty"`
	Mutual  bool   `json:"mutual,omitempty"`
	Status  string `json:"status,omitempty"`
	MatchID string `json:"match_id,omitempty"`
}

func NewEvent(t EventType, userID string, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		UserID:    userID,
		Timestamp: now,
	}
}
