// Package client holds the participant-side view of the queue and session
// lifecycle, rebuilt from the notifications delivered on the user's topic.
//
// Delivery is at-least-once and unordered, so every transition is guarded:
// duplicates are dropped by event ID and sessions that are known to have
// ended can never be re-entered.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/speeddating/internal/domain"
)

type State string

const (
	StateIdle       State = "idle"
	StateQueued     State = "queued"
	StateConnecting State = "connecting"
	StateInSession  State = "in_session"
	StateMatched    State = "matched"
	StateEnded      State = "ended"
)

const seenLimit = 512

// View is what the UI renders.
type View struct {
	State     State
	Position  int
	QueueSize int

	SessionID            string
	RoomURL              string
	RoomToken            string
	Icebreaker           string
	EndsAt               *time.Time
	CounterpartID        string
	CounterpartName      string
	CounterpartPhotoURL  string
	CounterpartAnonymous bool

	Points    int
	MatchID   string
	EndReason string
	// Notice is a transient message such as a queue error or timeout.
	Notice string
}

type Machine struct {
	mu     sync.Mutex
	userID string
	view   View

	seen      map[string]struct{}
	seenOrder []string
	ended     map[string]struct{}
	log       *slog.Logger
}

func NewMachine(userID string, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		userID: userID,
		view:   View{State: StateIdle},
		seen:   make(map[string]struct{}),
		ended:  make(map[string]struct{}),
		log:    log,
	}
}

func (m *Machine) State() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Apply folds one notification into the view and reports whether it changed.
func (m *Machine) Apply(ev domain.Event) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.UserID != "" && ev.UserID != m.userID {
		return m.view, false
	}
	if ev.ID != "" {
		if _, dup := m.seen[ev.ID]; dup {
			return m.view, false
		}
		m.remember(ev.ID)
	}

	before := m.view
	switch ev.Type {
	case domain.EventQueueJoined, domain.EventQueuePositionUpdate:
		m.onQueued(ev)
	case domain.EventQueueLeft:
		m.onQueueLeft(ev)
	case domain.EventMatchFound:
		m.onMatchFound(ev)
	case domain.EventActionResult:
		m.onActionResult(ev)
	case domain.EventMatchConfirmed:
		m.onMatchConfirmed(ev)
	case domain.EventSessionEnded:
		m.onSessionEnded(ev)
	case domain.EventError:
		m.onError(ev)
	default:
		m.log.Debug("ignoring unknown event", slog.String("type", string(ev.Type)))
	}

	return m.view, !sameView(before, m.view)
}

// Connected records that the local video connection came up.
func (m *Machine) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.view.State != StateConnecting {
		return false
	}
	m.view.State = StateInSession
	return true
}

// Reset returns a finished session view to idle so the user can queue again.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.view.State == StateMatched || m.view.State == StateEnded {
		m.view = View{State: StateIdle}
	}
}

// Follow applies events from src until it is closed or ctx is done.
func (m *Machine) Follow(ctx context.Context, src <-chan domain.Event, onChange func(View)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			if view, changed := m.Apply(ev); changed && onChange != nil {
				onChange(view)
			}
		}
	}
}

func (m *Machine) onQueued(ev domain.Event) {
	switch m.view.State {
	case StateIdle, StateEnded, StateMatched:
		if ev.Type != domain.EventQueueJoined {
			return
		}
		m.view = View{State: StateQueued}
	case StateQueued:
	default:
		// a late queue event must not pull the user out of a session
		return
	}
	m.view.Position = ev.Position
	m.view.QueueSize = ev.QueueSize
}

func (m *Machine) onQueueLeft(ev domain.Event) {
	if m.view.State != StateQueued {
		return
	}
	m.view = View{State: StateIdle}
	if ev.Reason == domain.QueueLeftReasonTimeout {
		m.view.Notice = "You were removed from the queue after being inactive."
	}
}

func (m *Machine) onMatchFound(ev domain.Event) {
	if ev.SessionID == "" || m.isEnded(ev.SessionID) || ev.SessionID == m.view.SessionID {
		return
	}
	if m.view.State == StateConnecting || m.view.State == StateInSession {
		m.log.Warn("match-found while in another session",
			slog.String("current", m.view.SessionID),
			slog.String("incoming", ev.SessionID),
		)
		return
	}

	m.view = View{
		State:                StateConnecting,
		SessionID:            ev.SessionID,
		RoomURL:              ev.RoomURL,
		RoomToken:            ev.RoomToken,
		Icebreaker:           ev.Icebreaker,
		EndsAt:               ev.EndsAt,
		CounterpartID:        ev.CounterpartID,
		CounterpartName:      ev.CounterpartName,
		CounterpartPhotoURL:  ev.CounterpartPhotoURL,
		CounterpartAnonymous: ev.CounterpartAnonymous,
	}
}

func (m *Machine) onActionResult(ev domain.Event) {
	if ev.SessionID != m.view.SessionID {
		return
	}
	m.view.Points = ev.Points
	switch domain.SessionStatus(ev.Status) {
	case domain.SessionStatusCompletedMatched:
		m.finish(ev.SessionID, StateMatched, "")
		m.view.MatchID = ev.MatchID
	case domain.SessionStatusCompleted:
		m.finish(ev.SessionID, StateEnded, ev.Action)
	}
}

func (m *Machine) onMatchConfirmed(ev domain.Event) {
	if ev.SessionID != m.view.SessionID {
		m.markEnded(ev.SessionID)
		return
	}
	m.finish(ev.SessionID, StateMatched, "")
	m.view.MatchID = ev.MatchID
	if ev.Points > 0 {
		m.view.Points = ev.Points
	}
}

func (m *Machine) onSessionEnded(ev domain.Event) {
	if ev.SessionID != m.view.SessionID {
		m.markEnded(ev.SessionID)
		return
	}
	if m.view.State == StateMatched {
		return
	}
	m.finish(ev.SessionID, StateEnded, ev.Reason)
}

// onError shows queue errors as a notice; a session error ends the session
// view and sends the user home.
func (m *Machine) onError(ev domain.Event) {
	if ev.SessionID != "" && ev.SessionID == m.view.SessionID {
		m.markEnded(ev.SessionID)
		m.view = View{State: StateIdle, Notice: ev.Message}
		return
	}
	m.view.Notice = ev.Message
}

func (m *Machine) finish(sessionID string, state State, reason string) {
	m.markEnded(sessionID)
	if m.view.State == StateMatched || m.view.State == StateEnded {
		return
	}
	m.view.State = state
	m.view.EndReason = reason
	m.view.RoomToken = ""
}

func (m *Machine) isEnded(sessionID string) bool {
	_, ok := m.ended[sessionID]
	return ok
}

func (m *Machine) markEnded(sessionID string) {
	if sessionID != "" {
		m.ended[sessionID] = struct{}{}
	}
}

func (m *Machine) remember(id string) {
	m.seen[id] = struct{}{}
	m.seenOrder = append(m.seenOrder, id)
	if len(m.seenOrder) > seenLimit {
		delete(m.seen, m.seenOrder[0])
		m.seenOrder = m.seenOrder[1:]
	}
}

func sameView(a, b View) bool {
	if (a.EndsAt == nil) != (b.EndsAt == nil) {
		return false
	}
	if a.EndsAt != nil && !a.EndsAt.Equal(*b.EndsAt) {
		return false
	}
	a.EndsAt, b.EndsAt = nil, nil
	return a == b
}
