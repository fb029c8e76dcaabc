package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/notify"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/immxrtalbeast/speeddating/lib/logger/sl"
)

type SweeperOptions struct {
	InactivityThreshold    time.Duration
	MaxWait                time.Duration
	SessionDuration        time.Duration
	HeartbeatSweepInterval time.Duration
	CleanupInterval        time.Duration
	SessionSweepInterval   time.Duration
	PositionUpdateInterval time.Duration
	PollInterval           time.Duration
}

type SweeperDeps struct {
	Queue     repository.QueueStore
	Locker    repository.MatchLocker
	Sessions  repository.SessionRepository
	Rooms     repository.RoomRepository
	Matcher   MatchTrigger
	Publisher notify.Publisher
	Clock     clock.Clock
	Log       *slog.Logger
}

// Sweeper runs the periodic jobs that keep the queue and sessions healthy.
type Sweeper struct {
	queue     repository.QueueStore
	locker    repository.MatchLocker
	sessions  repository.SessionRepository
	rooms     repository.RoomRepository
	matcher   MatchTrigger
	publisher notify.Publisher
	clock     clock.Clock
	opts      SweeperOptions
	log       *slog.Logger
}

func NewSweeper(deps SweeperDeps, opts SweeperOptions) *Sweeper {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Sweeper{
		queue:     deps.Queue,
		locker:    deps.Locker,
		sessions:  deps.Sessions,
		rooms:     deps.Rooms,
		matcher:   deps.Matcher,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		opts:      opts,
		log:       deps.Log,
	}
}

// Run blocks until ctx is cancelled. Jobs with a non-positive interval are skipped.
func (s *Sweeper) Run(ctx context.Context) {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"heartbeats", s.opts.HeartbeatSweepInterval, func(ctx context.Context) error { _, err := s.SweepHeartbeats(ctx); return err }},
		{"cleanup", s.opts.CleanupInterval, func(ctx context.Context) error { _, err := s.CleanupQueue(ctx); return err }},
		{"sessions", s.opts.SessionSweepInterval, func(ctx context.Context) error { _, err := s.ExpireSessions(ctx); return err }},
		{"positions", s.opts.PositionUpdateInterval, s.PublishPositions},
		{"matching", s.opts.PollInterval, func(ctx context.Context) error { _, err := s.PollMatches(ctx); return err }},
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.interval <= 0 {
			continue
		}
		job := job
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job.name, job.interval, job.run)
		}()
	}
	wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	log := s.log.With(slog.String("op", "service.sweeper."+name))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("sweep failed", sl.Err(err))
			}
		}
	}
}

// SweepHeartbeats removes queued participants whose last heartbeat is older
// than the inactivity threshold.
func (s *Sweeper) SweepHeartbeats(ctx context.Context) (int, error) {
	const op = "service.sweeper.heartbeats"
	log := s.log.With(slog.String("op", op))

	now := s.clock.Now()
	stale, err := s.queue.StaleSince(ctx, now.Add(-s.opts.InactivityThreshold))
	if err != nil {
		return 0, storeErr(op, err)
	}

	removed := 0
	for _, userID := range stale {
		ok, err := s.queue.Remove(ctx, userID)
		if err != nil {
			return removed, storeErr(op, err)
		}
		if !ok {
			continue
		}
		removed++
		log.Info("removed inactive participant", slog.String("user_id", userID))
		s.notifyTimeout(ctx, userID, now)
	}

	log.Debug("heartbeat sweep done", slog.Int("removed", removed))
	return removed, nil
}

// CleanupQueue purges entries past the maximum wait, clears an orphaned
// matching lock and drops expired rooms.
func (s *Sweeper) CleanupQueue(ctx context.Context) (int, error) {
	const op = "service.sweeper.cleanup"
	log := s.log.With(slog.String("op", op))

	now := s.clock.Now()
	purged, err := s.queue.PurgeOlderThan(ctx, now.Add(-s.opts.MaxWait))
	if err != nil {
		return 0, storeErr(op, err)
	}
	for _, entry := range purged {
		log.Info("removed participant past max wait", slog.String("user_id", entry.UserID))
		s.notifyTimeout(ctx, entry.UserID, now)
	}

	if s.locker != nil {
		cleared, err := s.locker.ClearOrphaned(ctx)
		if err != nil {
			log.Warn("failed to clear orphaned lock", sl.Err(err))
		} else if cleared {
			log.Warn("cleared orphaned matching lock")
		}
	}

	if s.rooms != nil {
		deleted, err := s.rooms.DeleteExpired(ctx, now)
		if err != nil {
			log.Warn("failed to delete expired rooms", sl.Err(err))
		} else if deleted > 0 {
			log.Debug("expired rooms deleted", slog.Int("count", deleted))
		}
	}

	return len(purged), nil
}

// ExpireSessions completes live sessions that have outlived the session timer.
func (s *Sweeper) ExpireSessions(ctx context.Context) (int, error) {
	const op = "service.sweeper.sessions"
	log := s.log.With(slog.String("op", op))

	now := s.clock.Now()
	overdue, err := s.sessions.ListLiveStartedBefore(ctx, now.Add(-s.opts.SessionDuration))
	if err != nil {
		return 0, storeErr(op, err)
	}

	expired := 0
	for _, session := range overdue {
		ended, err := s.sessions.Transition(ctx, session.ID, domain.LiveSessionStatuses,
			domain.SessionStatusCompleted, domain.EndReasonTimeout, now)
		if err != nil {
			return expired, storeErr(op, err)
		}
		if !ended {
			continue
		}
		expired++
		log.Info("session timed out", slog.String("session_id", session.ID.String()))

		for _, uid := range []string{session.ParticipantA, session.ParticipantB} {
			ev := domain.NewEvent(domain.EventSessionEnded, uid, now)
			ev.SessionID = session.ID.String()
			ev.Reason = domain.EndReasonTimeout
			ev.Status = string(domain.SessionStatusCompleted)
			s.publish(ctx, ev)
		}
	}
	return expired, nil
}

func (s *Sweeper) PublishPositions(ctx context.Context) error {
	const op = "service.sweeper.positions"

	entries, err := s.queue.Snapshot(ctx, 0)
	if err != nil {
		return storeErr(op, err)
	}

	now := s.clock.Now()
	for i, entry := range entries {
		ev := domain.NewEvent(domain.EventQueuePositionUpdate, entry.UserID, now)
		ev.Position = i + 1
		ev.QueueSize = len(entries)
		s.publish(ctx, ev)
	}
	return nil
}

func (s *Sweeper) PollMatches(ctx context.Context) (int, error) {
	if s.matcher == nil {
		return 0, nil
	}
	created, err := s.matcher.TriggerMatching(ctx)
	if created > 0 {
		s.log.Debug("poll created sessions", slog.Int("count", created))
	}
	return created, err
}

func (s *Sweeper) notifyTimeout(ctx context.Context, userID string, now time.Time) {
	ev := domain.NewEvent(domain.EventQueueLeft, userID, now)
	ev.Reason = domain.QueueLeftReasonTimeout
	s.publish(ctx, ev)
}

func (s *Sweeper) publish(ctx context.Context, ev domain.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish event", sl.Err(err), slog.String("type", string(ev.Type)))
	}
}
