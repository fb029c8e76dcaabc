package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MatchStatusMatched    = "matched"
	MatchSourceSpeedDates = "speed_dating"
)

// Match is the durable mutual-interest record shared with the rest of the app.
type Match struct {
	ID        uuid.UUID
	UserLow   string
	UserHigh  string
	Status    string
	Source    string
	SessionID uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PairKey orders two user ids so a pair has one canonical form regardless of direction.
func PairKey(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

type Icebreaker struct {
	ID     uuid.UUID
	Prompt string
	Active bool
}

// Profile is the read-only view of a user profile owned by another service.
type Profile struct {
	UserID   string
	Name     string
	PhotoURL string
	Age      int
	Gender   string
}

func (p *Profile) DisplayInfo() DisplayInfo {
	return DisplayInfo{Name: p.Name, PhotoURL: p.PhotoURL, Age: p.Age, Gender: p.Gender}
}
