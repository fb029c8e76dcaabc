package model

import (
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ParticipantA string     `gorm:"size:128;index;not null"`
	ParticipantB string     `gorm:"size:128;index;not null"`
	RoomID       uuid.UUID  `gorm:"type:uuid;not null"`
	RoomURL      string     `gorm:"size:512"`
	Status       string     `gorm:"size:32;index;not null"`
	IcebreakerID *uuid.UUID `gorm:"type:uuid"`
	Icebreaker   string     `gorm:"size:512"`
	AnonymousA   bool       `gorm:"not null"`
	AnonymousB   bool       `gorm:"not null"`
	StartedAt    time.Time  `gorm:"index;not null"`
	EndedAt      *time.Time
	EndReason    string `gorm:"size:32"`
}

type SessionAction struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_session_actions_key,priority:1"`
	UserID       string    `gorm:"size:128;not null;index;uniqueIndex:ux_session_actions_key,priority:2"`
	Action       string    `gorm:"size:16;not null;uniqueIndex:ux_session_actions_key,priority:3"`
	ReportReason string    `gorm:"size:512"`
	Points       int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type Match struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserLow   string    `gorm:"size:128;not null;uniqueIndex:ux_matches_pair,priority:1"`
	UserHigh  string    `gorm:"size:128;not null;uniqueIndex:ux_matches_pair,priority:2"`
	Status    string    `gorm:"size:32;not null"`
	Source    string    `gorm:"size:32;not null"`
	SessionID uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type Icebreaker struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Prompt string    `gorm:"size:512;not null"`
	Active bool      `gorm:"index;not null"`
}

// Profile is owned by the profile service; this module only reads it.
type Profile struct {
	UserID   string `gorm:"size:128;primaryKey"`
	Name     string `gorm:"size:255;not null"`
	PhotoURL string `gorm:"size:512"`
	Age      int
	Gender   string `gorm:"size:16"`
}

type Room struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SessionID uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	Link      string     `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time  `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
}
