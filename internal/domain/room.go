package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

const linkLength = 12

// Room is a provisioned video room backing exactly one session.
type Room struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Link      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewRoom constructs a room with generated identifiers and lifetime options.
func NewRoom(sessionID uuid.UUID, lifetime time.Duration, now time.Time) *Room {
	room := &Room{
		ID:        uuid.New(),
		SessionID: sessionID,
		Link:      generateLink(),
		CreatedAt: now,
	}

	if lifetime > 0 {
		room.ExpiresAt = now.Add(lifetime)
	}

	return room
}

// IsExpiredAt reports whether the room is no longer valid at the given instant.
func (r *Room) IsExpiredAt(now time.Time) bool {
	if r == nil {
		return true
	}
	if r.ExpiresAt.IsZero() {
		return false
	}
	return now.After(r.ExpiresAt)
}

// RoomRef is what the matching engine needs to hand participants off to video.
type RoomRef struct {
	RoomID     uuid.UUID
	JoinURL    string
	ICEServers []webrtc.ICEServer
}

func generateLink() string {
	link := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(link) <= linkLength {
		return link
	}
	return link[:linkLength]
}
