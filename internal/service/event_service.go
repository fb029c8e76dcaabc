package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/notify"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/immxrtalbeast/speeddating/lib/logger/sl"
)

// Reason sent to the counterpart of a reported participant; the report
// itself is never disclosed.
const endReasonNeutral = "ended"

type EventDeps struct {
	Queue     repository.QueueStore
	Sessions  repository.SessionRepository
	Actions   repository.ActionRepository
	Matches   repository.MatchRepository
	Profiles  repository.ProfileRepository
	Matcher   *MatchingEngine
	Publisher notify.Publisher
	Points    domain.PointsPolicy
	Clock     clock.Clock
	Log       *slog.Logger
}

// EventService orchestrates queue membership and session actions.
type EventService struct {
	queue     repository.QueueStore
	sessions  repository.SessionRepository
	actions   repository.ActionRepository
	matches   repository.MatchRepository
	profiles  repository.ProfileRepository
	matcher   *MatchingEngine
	publisher notify.Publisher
	points    domain.PointsPolicy
	clock     clock.Clock
	log       *slog.Logger
}

func NewEventService(deps EventDeps) *EventService {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Points == (domain.PointsPolicy{}) {
		deps.Points = domain.DefaultPointsPolicy()
	}
	return &EventService{
		queue:     deps.Queue,
		sessions:  deps.Sessions,
		actions:   deps.Actions,
		matches:   deps.Matches,
		profiles:  deps.Profiles,
		matcher:   deps.Matcher,
		publisher: deps.Publisher,
		points:    deps.Points,
		clock:     deps.Clock,
		log:       deps.Log,
	}
}

func (s *EventService) JoinQueue(ctx context.Context, userID string, prefs domain.Preferences, display domain.DisplayInfo) (*domain.Event, error) {
	const op = "service.event.joinQueue"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID),
	)

	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%s: %w: user id is required", op, domain.ErrValidation)
	}
	if err := prefs.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	display, err := s.displayFor(ctx, userID, display)
	if err != nil {
		return nil, err
	}
	if err := display.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.sessions.ActiveForUser(ctx, userID); err == nil {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrAlreadyInSession)
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, storeErr(op, err)
	}

	entry := &domain.QueueEntry{
		UserID:      userID,
		JoinedAt:    s.clock.Now(),
		Preferences: prefs.Normalize(),
		Display:     display,
	}

	position, added, err := s.queue.Add(ctx, entry)
	if err != nil {
		log.Error("failed to enqueue", sl.Err(err))
		return nil, storeErr(op, err)
	}
	if !added {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrAlreadyQueued)
	}

	// A matching pass may have seated the user between the check above and Add.
	if _, err := s.sessions.ActiveForUser(ctx, userID); err == nil {
		if _, err := s.queue.Remove(context.WithoutCancel(ctx), userID); err != nil {
			log.Error("failed to undo enqueue", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, domain.ErrAlreadyInSession)
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		log.Warn("failed to re-check active session", sl.Err(err))
	}

	size, err := s.queue.Len(ctx)
	if err != nil {
		log.Warn("failed to read queue size", sl.Err(err))
		size = position
	}

	ev := domain.NewEvent(domain.EventQueueJoined, userID, entry.JoinedAt)
	ev.Position = position
	ev.QueueSize = size
	s.publish(ctx, ev)

	log.Info("joined queue", slog.Int("position", position))

	if _, err := s.TriggerMatching(ctx); err != nil {
		log.Warn("matching after join failed", sl.Err(err))
	}

	return &ev, nil
}

func (s *EventService) LeaveQueue(ctx context.Context, userID string) (*domain.Event, error) {
	const op = "service.event.leaveQueue"

	removed, err := s.queue.Remove(ctx, userID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !removed {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNotQueued)
	}

	ev := domain.NewEvent(domain.EventQueueLeft, userID, s.clock.Now())
	ev.Reason = domain.QueueLeftReasonUser
	s.publish(ctx, ev)

	s.log.Info("left queue", slog.String("op", op), slog.String("user_id", userID))
	return &ev, nil
}

// Heartbeat refreshes the liveness of a queued participant.
func (s *EventService) Heartbeat(ctx context.Context, userID string) (*domain.QueuePosition, error) {
	const op = "service.event.heartbeat"

	touched, err := s.queue.Touch(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !touched {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNotQueued)
	}
	return s.QueueStatus(ctx, userID)
}

func (s *EventService) QueueStatus(ctx context.Context, userID string) (*domain.QueuePosition, error) {
	const op = "service.event.queueStatus"

	position, ok, err := s.queue.PositionOf(ctx, userID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNotQueued)
	}
	size, err := s.queue.Len(ctx)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return &domain.QueuePosition{Position: position, QueueSize: size}, nil
}

// TriggerMatching drains the queue window, returning the number of sessions created.
// A pass already running elsewhere is not an error.
func (s *EventService) TriggerMatching(ctx context.Context) (int, error) {
	created := 0
	for {
		session, err := s.matcher.AttemptMatch(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrLockNotAcquired) {
				return created, nil
			}
			return created, err
		}
		if session == nil {
			return created, nil
		}
		created++
	}
}

// SessionAction records the action first and then derives its consequences.
// Replaying an action re-runs the derivation without awarding anything twice.
func (s *EventService) SessionAction(ctx context.Context, userID string, sessionID uuid.UUID, action domain.Action, reason string) (*domain.ActionResult, error) {
	const op = "service.event.sessionAction"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("session_id", sessionID.String()),
		slog.String("action", string(action)),
	)

	parsed, err := domain.ParseAction(string(action))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	action = parsed
	reason, err = domain.NormalizeReportReason(action, reason)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.participantSession(ctx, op, userID, sessionID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.actions.Get(ctx, sessionID, userID, action)
	switch {
	case err == nil:
		log.Debug("action replayed")
		return s.decide(ctx, log, session, outcome, true)
	case !errors.Is(err, repository.ErrActionNotFound):
		return nil, storeErr(op, err)
	}

	if !session.Status.IsLive() && action != domain.ActionReport {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrSessionEnded)
	}

	outcome = domain.NewActionOutcome(sessionID, userID, action, reason, s.points.For(action, false), s.clock.Now())
	inserted, err := s.actions.Append(ctx, outcome)
	if err != nil {
		log.Error("failed to record action", sl.Err(err))
		return nil, storeErr(op, err)
	}
	if !inserted {
		outcome, err = s.actions.Get(ctx, sessionID, userID, action)
		if err != nil {
			return nil, storeErr(op, err)
		}
	}

	log.Info("action recorded", slog.Bool("inserted", inserted))
	return s.decide(ctx, log, session, outcome, !inserted)
}

func (s *EventService) decide(ctx context.Context, log *slog.Logger, session *domain.Session, outcome *domain.ActionOutcome, duplicate bool) (*domain.ActionResult, error) {
	const op = "service.event.decide"

	result := &domain.ActionResult{
		SessionID: session.ID,
		Action:    outcome.Action,
		Points:    outcome.Points,
		Status:    session.Status,
		Duplicate: duplicate,
	}

	var err error
	switch outcome.Action {
	case domain.ActionVibe:
		err = s.decideVibe(ctx, log, session, outcome, result)
	case domain.ActionSkip, domain.ActionReport:
		err = s.decideEnd(ctx, log, session, outcome, result)
	}
	if err != nil {
		return nil, storeErr(op, err)
	}

	if !duplicate {
		ev := domain.NewEvent(domain.EventActionResult, outcome.UserID, s.clock.Now())
		ev.SessionID = session.ID.String()
		ev.Action = string(outcome.Action)
		ev.Points = result.Points
		ev.Mutual = result.Mutual
		ev.Status = string(result.Status)
		if result.MatchID != nil {
			ev.MatchID = result.MatchID.String()
		}
		s.publish(ctx, ev)
	}
	return result, nil
}

func (s *EventService) decideVibe(ctx context.Context, log *slog.Logger, session *domain.Session, outcome *domain.ActionOutcome, result *domain.ActionResult) error {
	counterpart := session.Counterpart(outcome.UserID)

	_, err := s.actions.Get(ctx, session.ID, counterpart, domain.ActionVibe)
	if errors.Is(err, repository.ErrActionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := s.clock.Now()
	won, err := s.sessions.MarkMatched(ctx, session.ID, now)
	if err != nil {
		return err
	}

	if !won {
		current, err := s.sessions.GetByID(ctx, session.ID)
		if err != nil {
			return err
		}
		result.Status = current.Status
		if current.Status != domain.SessionStatusCompletedMatched {
			return nil
		}
		result.Mutual = true
		result.Points = s.points.For(domain.ActionVibe, true)
		if match, err := s.matches.GetByPair(ctx, session.ParticipantA, session.ParticipantB); err == nil {
			result.MatchID = &match.ID
		}
		return nil
	}

	match, err := s.matches.Upsert(ctx, session.ParticipantA, session.ParticipantB, session.ID, now)
	if err != nil {
		return err
	}

	mutualPoints := s.points.For(domain.ActionVibe, true)
	for _, uid := range []string{session.ParticipantA, session.ParticipantB} {
		vibe, err := s.actions.Get(ctx, session.ID, uid, domain.ActionVibe)
		if err != nil {
			return err
		}
		if err := s.actions.SetPoints(ctx, vibe.ID, mutualPoints); err != nil {
			return err
		}
	}

	result.Mutual = true
	result.Points = mutualPoints
	result.Status = domain.SessionStatusCompletedMatched
	result.MatchID = &match.ID

	log.Info("mutual vibe", slog.String("match_id", match.ID.String()))

	for _, uid := range []string{session.ParticipantA, session.ParticipantB} {
		ev := domain.NewEvent(domain.EventMatchConfirmed, uid, now)
		ev.SessionID = session.ID.String()
		ev.MatchID = match.ID.String()
		ev.CounterpartID = session.Counterpart(uid)
		ev.Status = string(domain.SessionStatusCompletedMatched)
		ev.Points = mutualPoints
		ev.Mutual = true
		s.publish(ctx, ev)
	}
	return nil
}

func (s *EventService) decideEnd(ctx context.Context, log *slog.Logger, session *domain.Session, outcome *domain.ActionOutcome, result *domain.ActionResult) error {
	reason := domain.EndReasonSkip
	notice := domain.EndReasonSkip
	if outcome.Action == domain.ActionReport {
		reason = domain.EndReasonReport
		notice = endReasonNeutral
	}

	now := s.clock.Now()
	ended, err := s.sessions.Transition(ctx, session.ID, domain.LiveSessionStatuses, domain.SessionStatusCompleted, reason, now)
	if err != nil {
		return err
	}
	if !ended {
		current, err := s.sessions.GetByID(ctx, session.ID)
		if err != nil {
			return err
		}
		result.Status = current.Status
		return nil
	}
	result.Status = domain.SessionStatusCompleted

	log.Info("session ended", slog.String("reason", reason))

	ev := domain.NewEvent(domain.EventSessionEnded, session.Counterpart(outcome.UserID), now)
	ev.SessionID = session.ID.String()
	ev.Reason = notice
	ev.Status = string(domain.SessionStatusCompleted)
	s.publish(ctx, ev)
	return nil
}

// MarkConnected records the video connect signal; repeating it is harmless.
func (s *EventService) MarkConnected(ctx context.Context, userID string, sessionID uuid.UUID) (*domain.Session, error) {
	const op = "service.event.markConnected"

	session, err := s.participantSession(ctx, op, userID, sessionID)
	if err != nil {
		return nil, err
	}

	moved, err := s.sessions.Transition(ctx, sessionID,
		[]domain.SessionStatus{domain.SessionStatusConnecting},
		domain.SessionStatusActive, "", s.clock.Now())
	if err != nil {
		return nil, storeErr(op, err)
	}
	if moved {
		s.log.Info("session active", slog.String("op", op), slog.String("session_id", sessionID.String()))
	}

	session, err = s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !session.Status.IsLive() {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrSessionEnded)
	}
	return session, nil
}

func (s *EventService) GetSession(ctx context.Context, userID string, sessionID uuid.UUID) (*domain.Session, error) {
	return s.participantSession(ctx, "service.event.getSession", userID, sessionID)
}

func (s *EventService) participantSession(ctx context.Context, op, userID string, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, storeErr(op, err)
	}
	if !session.HasParticipant(userID) {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	return session, nil
}

// displayFor prefers the stored profile over what the client sent.
func (s *EventService) displayFor(ctx context.Context, userID string, fallback domain.DisplayInfo) (domain.DisplayInfo, error) {
	const op = "service.event.displayFor"

	if s.profiles == nil {
		return fallback, nil
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return fallback, nil
		}
		return domain.DisplayInfo{}, storeErr(op, err)
	}
	return profile.DisplayInfo(), nil
}

func (s *EventService) publish(ctx context.Context, ev domain.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish event",
			sl.Err(err),
			slog.String("type", string(ev.Type)),
			slog.String("user_id", ev.UserID),
		)
	}
}
