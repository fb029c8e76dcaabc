package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.March, 14, 19, 0, 0, 0, time.UTC)

func newMachine() *Machine {
	return NewMachine("alice", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func event(t domain.EventType) domain.Event {
	return domain.NewEvent(t, "alice", now)
}

func matchFound(sessionID string) domain.Event {
	ev := event(domain.EventMatchFound)
	ev.SessionID = sessionID
	ev.RoomURL = "https://video.test/room/abc"
	ev.RoomToken = "token"
	ev.CounterpartID = "bob"
	ev.CounterpartName = "Bob"
	return ev
}

func TestMachine_QueueFlow(t *testing.T) {
	m := newMachine()

	joined := event(domain.EventQueueJoined)
	joined.Position, joined.QueueSize = 3, 3
	view, changed := m.Apply(joined)
	assert.True(t, changed)
	assert.Equal(t, StateQueued, view.State)
	assert.Equal(t, 3, view.Position)

	update := event(domain.EventQueuePositionUpdate)
	update.Position, update.QueueSize = 1, 2
	view, _ = m.Apply(update)
	assert.Equal(t, 1, view.Position)
	assert.Equal(t, 2, view.QueueSize)

	left := event(domain.EventQueueLeft)
	left.Reason = domain.QueueLeftReasonTimeout
	view, _ = m.Apply(left)
	assert.Equal(t, StateIdle, view.State)
	assert.NotEmpty(t, view.Notice)
}

func TestMachine_PositionUpdateDoesNotQueueIdleUser(t *testing.T) {
	m := newMachine()

	update := event(domain.EventQueuePositionUpdate)
	update.Position = 2
	view, changed := m.Apply(update)
	assert.False(t, changed)
	assert.Equal(t, StateIdle, view.State)
}

func TestMachine_DuplicateMatchFoundKeepsOneSession(t *testing.T) {
	m := newMachine()
	m.Apply(event(domain.EventQueueJoined))

	found := matchFound("s-1")
	view, changed := m.Apply(found)
	require.True(t, changed)
	assert.Equal(t, StateConnecting, view.State)
	assert.Equal(t, "s-1", view.SessionID)

	_, changed = m.Apply(found)
	assert.False(t, changed, "same event delivered twice")

	redelivered := matchFound("s-1")
	_, changed = m.Apply(redelivered)
	assert.False(t, changed, "same session under a new event id")

	other := matchFound("s-2")
	view, changed = m.Apply(other)
	assert.False(t, changed)
	assert.Equal(t, "s-1", view.SessionID)
}

func TestMachine_LateQueueEventDoesNotLeaveSession(t *testing.T) {
	m := newMachine()
	m.Apply(event(domain.EventQueueJoined))
	m.Apply(matchFound("s-1"))
	require.True(t, m.Connected())

	update := event(domain.EventQueuePositionUpdate)
	update.Position = 1
	view, changed := m.Apply(update)
	assert.False(t, changed)
	assert.Equal(t, StateInSession, view.State)
}

func TestMachine_SessionEndedBeforeMatchFound(t *testing.T) {
	m := newMachine()
	m.Apply(event(domain.EventQueueJoined))

	ended := event(domain.EventSessionEnded)
	ended.SessionID = "s-1"
	ended.Reason = domain.EndReasonTimeout
	m.Apply(ended)

	view, changed := m.Apply(matchFound("s-1"))
	assert.False(t, changed, "an ended session is never re-entered")
	assert.Equal(t, StateQueued, view.State)
}

func TestMachine_MutualMatch(t *testing.T) {
	m := newMachine()
	m.Apply(matchFound("s-1"))
	m.Connected()

	result := event(domain.EventActionResult)
	result.SessionID = "s-1"
	result.Action = string(domain.ActionVibe)
	result.Points = 25
	result.Status = string(domain.SessionStatusActive)
	view, _ := m.Apply(result)
	assert.Equal(t, StateInSession, view.State)
	assert.Equal(t, 25, view.Points)

	confirmed := event(domain.EventMatchConfirmed)
	confirmed.SessionID = "s-1"
	confirmed.MatchID = "m-1"
	confirmed.Points = 50
	view, _ = m.Apply(confirmed)
	assert.Equal(t, StateMatched, view.State)
	assert.Equal(t, "m-1", view.MatchID)
	assert.Equal(t, 50, view.Points)
	assert.Empty(t, view.RoomToken)

	ended := event(domain.EventSessionEnded)
	ended.SessionID = "s-1"
	view, _ = m.Apply(ended)
	assert.Equal(t, StateMatched, view.State, "a late session-ended does not downgrade a match")

	m.Reset()
	assert.Equal(t, StateIdle, m.State().State)
}

func TestMachine_CounterpartSkips(t *testing.T) {
	m := newMachine()
	m.Apply(matchFound("s-1"))

	ended := event(domain.EventSessionEnded)
	ended.SessionID = "s-1"
	ended.Reason = domain.EndReasonSkip
	view, _ := m.Apply(ended)
	assert.Equal(t, StateEnded, view.State)
	assert.Equal(t, domain.EndReasonSkip, view.EndReason)
	assert.False(t, m.Connected())
}

func TestMachine_SessionErrorReturnsHome(t *testing.T) {
	m := newMachine()
	m.Apply(matchFound("s-1"))

	failure := event(domain.EventError)
	failure.SessionID = "s-1"
	failure.Message = "session not found"
	view, _ := m.Apply(failure)
	assert.Equal(t, StateIdle, view.State)
	assert.Equal(t, "session not found", view.Notice)
	assert.Empty(t, view.SessionID)

	queueErr := event(domain.EventError)
	queueErr.Message = "try again"
	view, _ = m.Apply(queueErr)
	assert.Equal(t, StateIdle, view.State)
	assert.Equal(t, "try again", view.Notice)
}

func TestMachine_IgnoresOtherUsers(t *testing.T) {
	m := newMachine()
	ev := domain.NewEvent(domain.EventQueueJoined, "bob", now)
	_, changed := m.Apply(ev)
	assert.False(t, changed)
}

func TestMachine_Follow(t *testing.T) {
	m := newMachine()
	src := make(chan domain.Event, 4)
	src <- event(domain.EventQueueJoined)
	src <- matchFound("s-1")
	close(src)

	var states []State
	m.Follow(context.Background(), src, func(v View) { states = append(states, v.State) })

	assert.Equal(t, []State{StateQueued, StateConnecting}, states)
}
