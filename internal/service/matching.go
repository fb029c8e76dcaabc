package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/notify"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/immxrtalbeast/speeddating/lib/logger/sl"
)

const (
	compensationTimeout   = 5 * time.Second
	pairingRecordAttempts = 3
)

type MatchingOptions struct {
	Window          int
	LockTTL         time.Duration
	PairingTTL      time.Duration
	SessionDuration time.Duration
}

type MatchingDeps struct {
	Queue       repository.QueueStore
	Pairings    repository.PairingStore
	Locker      repository.MatchLocker
	Sessions    repository.SessionRepository
	Icebreakers repository.IcebreakerRepository
	Rooms       RoomProvisioner
	Policy      domain.CompatibilityPolicy
	Publisher   notify.Publisher
	Clock       clock.Clock
	Log         *slog.Logger
}

// MatchingEngine pairs waiting participants. It holds no state of its own;
// every instance coordinates through the queue, pairing store and lock.
type MatchingEngine struct {
	queue       repository.QueueStore
	pairings    repository.PairingStore
	locker      repository.MatchLocker
	sessions    repository.SessionRepository
	icebreakers repository.IcebreakerRepository
	rooms       RoomProvisioner
	policy      domain.CompatibilityPolicy
	publisher   notify.Publisher
	clock       clock.Clock
	opts        MatchingOptions
	log         *slog.Logger
}

type pairing struct {
	session *domain.Session
	a, b    *domain.QueueEntry
	room    *domain.RoomRef
	tokenA  string
	tokenB  string
}

func NewMatchingEngine(deps MatchingDeps, opts MatchingOptions) *MatchingEngine {
	if opts.Window < 2 {
		opts.Window = 20
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.PairingTTL <= 0 {
		opts.PairingTTL = 30 * time.Minute
	}
	if opts.SessionDuration <= 0 {
		opts.SessionDuration = 90 * time.Second
	}
	if deps.Policy == nil {
		deps.Policy = domain.PreferencePolicy{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	return &MatchingEngine{
		queue:       deps.Queue,
		pairings:    deps.Pairings,
		locker:      deps.Locker,
		sessions:    deps.Sessions,
		icebreakers: deps.Icebreakers,
		rooms:       deps.Rooms,
		policy:      deps.Policy,
		publisher:   deps.Publisher,
		clock:       deps.Clock,
		opts:        opts,
		log:         deps.Log,
	}
}

// AttemptMatch runs one matching pass. It returns (nil, nil) when there is no
// compatible pair and domain.ErrLockNotAcquired when another pass is running.
func (e *MatchingEngine) AttemptMatch(ctx context.Context) (*domain.Session, error) {
	const op = "service.matching.attempt"
	log := e.log.With(slog.String("op", op))

	size, err := e.queue.Len(ctx)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if size < 2 {
		return nil, nil
	}

	lock, err := e.locker.Acquire(ctx, e.opts.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			log.Debug("matching pass already in progress")
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, storeErr(op, err)
	}

	p, err := e.matchLocked(ctx, log)
	e.release(ctx, lock, log)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	log.Info("session created",
		slog.String("session_id", p.session.ID.String()),
		slog.String("participant_a", p.a.UserID),
		slog.String("participant_b", p.b.UserID),
	)

	e.announce(ctx, p)
	return p.session, nil
}

func (e *MatchingEngine) matchLocked(ctx context.Context, log *slog.Logger) (*pairing, error) {
	const op = "service.matching.match"

	entries, err := e.queue.Snapshot(ctx, e.opts.Window)
	if err != nil {
		return nil, storeErr(op, err)
	}

	a, b, err := e.findPair(ctx, entries)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if a == nil {
		log.Debug("no compatible pair in window", slog.Int("window", len(entries)))
		return nil, nil
	}

	removed, err := e.queue.RemovePair(ctx, a.UserID, b.UserID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !removed {
		log.Debug("pair left the queue before dequeue",
			slog.String("participant_a", a.UserID),
			slog.String("participant_b", b.UserID),
		)
		return nil, nil
	}

	sessionID := uuid.New()
	p := &pairing{a: a, b: b}

	p.room, err = e.rooms.CreateRoom(ctx, sessionID)
	if err != nil {
		log.Error("room provisioning failed", sl.Err(err))
		e.requeue(ctx, log, a, b)
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrProvisioningFailure, err)
	}

	p.tokenA, err = e.rooms.IssueToken(ctx, p.room.RoomID, a.UserID, tokenName(a))
	if err == nil {
		p.tokenB, err = e.rooms.IssueToken(ctx, p.room.RoomID, b.UserID, tokenName(b))
	}
	if err != nil {
		log.Error("room token issuance failed", sl.Err(err))
		e.requeue(ctx, log, a, b)
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrProvisioningFailure, err)
	}

	icebreaker, err := e.icebreakers.RandomActive(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrIcebreakerNotFound) {
			log.Warn("icebreaker lookup failed", sl.Err(err))
		}
		icebreaker = nil
	}

	p.session = domain.NewSession(sessionID, a, b, p.room, icebreaker, e.clock.Now())
	if err := e.sessions.Create(ctx, p.session); err != nil {
		log.Error("failed to persist session", sl.Err(err))
		e.requeue(ctx, log, a, b)
		return nil, storeErr(op, err)
	}

	// Either participant may have re-joined while the room was provisioned.
	e.dequeueSeated(ctx, log, a.UserID, b.UserID)
	e.recordPairing(ctx, log, a.UserID, b.UserID)

	return p, nil
}

func (e *MatchingEngine) dequeueSeated(ctx context.Context, log *slog.Logger, userIDs ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for _, userID := range userIDs {
		removed, err := e.queue.Remove(ctx, userID)
		if err != nil {
			log.Error("failed to dequeue seated participant", sl.Err(err), slog.String("user_id", userID))
			continue
		}
		if removed {
			log.Info("dequeued participant who re-joined during provisioning", slog.String("user_id", userID))
		}
	}
}

// recordPairing retries a few times since a missing record allows an
// immediate rematch of the same pair.
func (e *MatchingEngine) recordPairing(ctx context.Context, log *slog.Logger, a, b string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= pairingRecordAttempts; attempt++ {
		if err = e.pairings.Record(ctx, a, b, e.opts.PairingTTL); err == nil {
			return
		}
		log.Warn("failed to record recent pairing", sl.Err(err), slog.Int("attempt", attempt))
		if ctx.Err() != nil {
			break
		}
	}
	log.Error("recent pairing not recorded", sl.Err(err),
		slog.String("participant_a", a),
		slog.String("participant_b", b),
	)
}

// findPair scans the window oldest-first and returns the first compatible
// pair that has not been paired recently.
func (e *MatchingEngine) findPair(ctx context.Context, entries []*domain.QueueEntry) (*domain.QueueEntry, *domain.QueueEntry, error) {
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if !e.policy.Compatible(a, b) {
				continue
			}
			recent, err := e.pairings.Exists(ctx, a.UserID, b.UserID)
			if err != nil {
				return nil, nil, err
			}
			if recent {
				continue
			}
			return a, b, nil
		}
	}
	return nil, nil, nil
}

// requeue puts both participants back with fresh timestamps. It runs even if
// the caller's context is already cancelled.
func (e *MatchingEngine) requeue(ctx context.Context, log *slog.Logger, entries ...*domain.QueueEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	now := e.clock.Now()
	for _, entry := range entries {
		fresh := *entry
		fresh.JoinedAt = now
		if _, _, err := e.queue.Add(ctx, &fresh); err != nil {
			log.Error("failed to requeue participant", sl.Err(err), slog.String("user_id", entry.UserID))
			continue
		}
		log.Info("participant requeued", slog.String("user_id", entry.UserID))
	}
}

func (e *MatchingEngine) release(ctx context.Context, lock repository.Lock, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := lock.Release(ctx); err != nil {
		log.Warn("failed to release matching lock", sl.Err(err))
	}
}

func (e *MatchingEngine) announce(ctx context.Context, p *pairing) {
	endsAt := p.session.EndsAt(e.opts.SessionDuration)
	now := e.clock.Now()

	notices := []struct {
		self, other *domain.QueueEntry
		token       string
	}{
		{self: p.a, other: p.b, token: p.tokenA},
		{self: p.b, other: p.a, token: p.tokenB},
	}

	for _, n := range notices {
		public := n.other.Public()
		ev := domain.NewEvent(domain.EventMatchFound, n.self.UserID, now)
		ev.SessionID = p.session.ID.String()
		ev.RoomURL = p.room.JoinURL
		ev.RoomToken = n.token
		ev.ICEServers = p.room.ICEServers
		ev.Icebreaker = p.session.Icebreaker
		ev.EndsAt = &endsAt
		ev.Status = string(p.session.Status)
		ev.CounterpartID = n.other.UserID
		ev.CounterpartName = public.Name
		ev.CounterpartPhotoURL = public.PhotoURL
		ev.CounterpartAnonymous = n.other.Preferences.Anonymous

		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.log.Warn("failed to publish match-found",
				sl.Err(err),
				slog.String("user_id", n.self.UserID),
				slog.String("session_id", ev.SessionID),
			)
		}
	}
}

// tokenName is the name shown inside the room; anonymous participants get none.
func tokenName(entry *domain.QueueEntry) string {
	if entry.Preferences.Anonymous {
		return ""
	}
	return entry.Display.Name
}
