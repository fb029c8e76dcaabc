package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
)

type PreferencesRequest struct {
	Anonymous        bool     `json:"anonymous"`
	AgeMin           int      `json:"age_min"`
	AgeMax           int      `json:"age_max"`
	GenderPreference string   `json:"gender_preference"`
	Interests        []string `json:"interests"`
}

type DisplayRequest struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

func PreferencesFromApi(p PreferencesRequest) domain.Preferences {
	prefs := domain.Preferences{
		Anonymous:        p.Anonymous,
		GenderPreference: p.GenderPreference,
		Interests:        p.Interests,
	}
	if p.AgeMin != 0 || p.AgeMax != 0 {
		prefs.AgeRange = &domain.AgeRange{Min: p.AgeMin, Max: p.AgeMax}
	}
	return prefs
}

func DisplayFromApi(d DisplayRequest) domain.DisplayInfo {
	return domain.DisplayInfo{Name: d.Name, PhotoURL: d.PhotoURL, Age: d.Age, Gender: d.Gender}
}

type QueueResponse struct {
	Position  int `json:"position"`
	QueueSize int `json:"queue_size"`
}

func QueuePositionToApi(p *domain.QueuePosition) *QueueResponse {
	return &QueueResponse{Position: p.Position, QueueSize: p.QueueSize}
}

type SessionResponse struct {
	ID           uuid.UUID  `json:"id"`
	Participants []string   `json:"participants"`
	RoomURL      string     `json:"room_url"`
	Status       string     `json:"status"`
	Icebreaker   string     `json:"icebreaker,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	EndReason    string     `json:"end_reason,omitempty"`
}

func SessionToApi(s *domain.Session) *SessionResponse {
	return &SessionResponse{
		ID:           s.ID,
		Participants: []string{s.ParticipantA, s.ParticipantB},
		RoomURL:      s.RoomURL,
		Status:       string(s.Status),
		Icebreaker:   s.Icebreaker,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
		EndReason:    s.EndReason,
	}
}

type ActionResultResponse struct {
	SessionID uuid.UUID  `json:"session_id"`
	Action    string     `json:"action"`
	Points    int        `json:"points"`
	Mutual    bool       `json:"mutual"`
	Status    string     `json:"status"`
	MatchID   *uuid.UUID `json:"match_id,omitempty"`
	Duplicate bool       `json:"duplicate,omitempty"`
}

func ActionResultToApi(r *domain.ActionResult) *ActionResultResponse {
	return &ActionResultResponse{
		SessionID: r.SessionID,
		Action:    string(r.Action),
		Points:    r.Points,
		Mutual:    r.Mutual,
		Status:    string(r.Status),
		MatchID:   r.MatchID,
		Duplicate: r.Duplicate,
	}
}
