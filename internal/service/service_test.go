package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/notify"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/internal/room"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/stretchr/testify/require"
)

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

var epoch = time.Date(2026, time.March, 14, 19, 0, 0, 0, time.UTC)

type testEnv struct {
	clock       *clock.Fake
	queue       *repository.InMemoryQueueStore
	pairings    *repository.InMemoryPairingStore
	locker      *repository.InMemoryMatchLocker
	actions     *repository.InMemoryActionRepository
	sessions    *repository.InMemorySessionRepository
	matches     *repository.InMemoryMatchRepository
	profiles    *repository.InMemoryProfileRepository
	icebreakers *repository.InMemoryIcebreakerRepository
	rooms       *repository.InMemoryRoomRepository
	provisioner *room.Provisioner
	events      *notify.Recorder
	engine      *MatchingEngine
	svc         *EventService
	sweeper     *Sweeper
}

// newTestEnv wires every component on in-memory stores. A nil provisioner
// uses the real room provisioner.
func newTestEnv(t *testing.T, provisioner RoomProvisioner) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:       clock.NewFake(epoch),
		queue:       repository.NewInMemoryQueueStore(),
		actions:     repository.NewInMemoryActionRepository(),
		matches:     repository.NewInMemoryMatchRepository(),
		profiles:    repository.NewInMemoryProfileRepository(),
		icebreakers: repository.NewInMemoryIcebreakerRepository("What made you smile today?"),
		rooms:       repository.NewInMemoryRoomRepository(),
		events:      notify.NewRecorder(),
	}
	env.pairings = repository.NewInMemoryPairingStore(env.clock)
	env.locker = repository.NewInMemoryMatchLocker(env.clock)
	env.sessions = repository.NewInMemorySessionRepository(env.actions)

	p, err := room.NewProvisioner(env.rooms, room.Options{
		BaseURL:         "https://video.test",
		TokenSecret:     "test-secret",
		TokenTTL:        5 * time.Minute,
		SessionDuration: 90 * time.Second,
		STUNServers:     []string{"stun:stun.l.google.com:19302"},
	}, env.clock, discardLog)
	require.NoError(t, err)
	env.provisioner = p
	if provisioner == nil {
		provisioner = p
	}

	env.engine = NewMatchingEngine(MatchingDeps{
		Queue:       env.queue,
		Pairings:    env.pairings,
		Locker:      env.locker,
		Sessions:    env.sessions,
		Icebreakers: env.icebreakers,
		Rooms:       provisioner,
		Publisher:   env.events,
		Clock:       env.clock,
		Log:         discardLog,
	}, MatchingOptions{
		Window:          20,
		LockTTL:         30 * time.Second,
		PairingTTL:      30 * time.Minute,
		SessionDuration: 90 * time.Second,
	})

	env.svc = NewEventService(EventDeps{
		Queue:     env.queue,
		Sessions:  env.sessions,
		Actions:   env.actions,
		Matches:   env.matches,
		Profiles:  env.profiles,
		Matcher:   env.engine,
		Publisher: env.events,
		Points:    domain.DefaultPointsPolicy(),
		Clock:     env.clock,
		Log:       discardLog,
	})

	env.sweeper = NewSweeper(SweeperDeps{
		Queue:     env.queue,
		Locker:    env.locker,
		Sessions:  env.sessions,
		Rooms:     env.rooms,
		Matcher:   env.svc,
		Publisher: env.events,
		Clock:     env.clock,
		Log:       discardLog,
	}, SweeperOptions{
		InactivityThreshold: 2 * time.Minute,
		MaxWait:             10 * time.Minute,
		SessionDuration:     90 * time.Second,
	})

	return env
}

func alicePrefs() domain.Preferences {
	return domain.Preferences{
		AgeRange:  &domain.AgeRange{Min: 18, Max: 25},
		Interests: []string{"music"},
	}
}

func bobPrefs() domain.Preferences {
	return domain.Preferences{
		AgeRange:  &domain.AgeRange{Min: 20, Max: 24},
		Interests: []string{"music", "sports"},
	}
}

// enqueue adds directly to the store so no matching pass runs.
func (e *testEnv) enqueue(t *testing.T, userID string, prefs domain.Preferences) {
	t.Helper()
	_, added, err := e.queue.Add(context.Background(), &domain.QueueEntry{
		UserID:      userID,
		JoinedAt:    e.clock.Now(),
		Preferences: prefs.Normalize(),
		Display:     domain.DisplayInfo{Name: userID},
	})
	require.NoError(t, err)
	require.True(t, added)
	e.clock.Advance(time.Millisecond)
}

func (e *testEnv) join(t *testing.T, userID string, prefs domain.Preferences) *domain.Event {
	t.Helper()
	ev, err := e.svc.JoinQueue(context.Background(), userID, prefs, domain.DisplayInfo{Name: userID})
	require.NoError(t, err)
	e.clock.Advance(time.Millisecond)
	return ev
}

// startSession pairs alice and bob through the public join flow.
func (e *testEnv) startSession(t *testing.T) *domain.Session {
	t.Helper()
	e.join(t, "alice", alicePrefs())
	e.join(t, "bob", bobPrefs())

	session, err := e.sessions.ActiveForUser(context.Background(), "alice")
	require.NoError(t, err)
	return session
}
