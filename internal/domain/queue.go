package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const GenderAny = "any"

var validate = validator.New()

// QueueEntry is a participant waiting to be paired.
// JoinedAt is the ordering score; ties are broken by insertion order in the store.
type QueueEntry struct {
	UserID      string
	JoinedAt    time.Time
	Preferences Preferences
	Display     DisplayInfo
}

type Preferences struct {
	Anonymous        bool
	AgeRange         *AgeRange `validate:"omitempty"`
	GenderPreference string    `validate:"omitempty,oneof=any male female nonbinary"`
	Interests        []string  `validate:"max=20,dive,required,max=64"`
}

type AgeRange struct {
	Min int `validate:"gte=18,lte=120"`
	Max int `validate:"gte=18,lte=120,gtefield=Min"`
}

// DisplayInfo is what the counterpart sees unless the owner is anonymous.
type DisplayInfo struct {
	Name     string `validate:"max=255"`
	PhotoURL string `validate:"omitempty,url"`
	Age      int    `validate:"omitempty,gte=18,lte=120"`
	Gender   string `validate:"omitempty,oneof=male female nonbinary"`
}

func (p Preferences) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: preferences: %s", ErrValidation, err.Error())
	}
	return nil
}

func (d DisplayInfo) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: display: %s", ErrValidation, err.Error())
	}
	return nil
}

// Normalize lower-cases and de-duplicates interests so set comparisons are exact.
func (p Preferences) Normalize() Preferences {
	out := p
	if p.GenderPreference == "" {
		out.GenderPreference = GenderAny
	}
	if len(p.Interests) == 0 {
		out.Interests = nil
		return out
	}
	seen := make(map[string]struct{}, len(p.Interests))
	interests := make([]string, 0, len(p.Interests))
	for _, interest := range p.Interests {
		v := strings.ToLower(strings.TrimSpace(interest))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		interests = append(interests, v)
	}
	if len(interests) == 0 {
		interests = nil
	}
	out.Interests = interests
	return out
}

// Public returns the display info the counterpart is allowed to see.
func (e *QueueEntry) Public() DisplayInfo {
	if e.Preferences.Anonymous {
		return DisplayInfo{Age: e.Display.Age, Gender: e.Display.Gender}
	}
	return e.Display
}

// QueuePosition is a participant's 1-based place in the queue.
type QueuePosition struct {
	Position  int
	QueueSize int
}
