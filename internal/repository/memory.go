package repository

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
)

type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	actions  *InMemoryActionRepository
}

// NewInMemorySessionRepository consults actions (if non-nil) for the report guard in MarkMatched.
func NewInMemorySessionRepository(actions *InMemoryActionRepository) *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]*domain.Session),
		actions:  actions,
	}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := *session
	r.sessions[session.ID] = &s
	return nil
}

func (r *InMemorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	s := *session
	return &s, nil
}

func (r *InMemorySessionRepository) ActiveForUser(ctx context.Context, userID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, session := range r.sessions {
		if session.Status.IsLive() && session.HasParticipant(userID) {
			s := *session
			return &s, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r *InMemorySessionRepository) Transition(ctx context.Context, id uuid.UUID, from []domain.SessionStatus, to domain.SessionStatus, reason string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if !statusIn(session.Status, from) {
		return false, nil
	}
	applyTransition(session, to, reason, at)
	return true, nil
}

func (r *InMemorySessionRepository) MarkMatched(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if !session.Status.IsLive() {
		return false, nil
	}
	if r.actions != nil {
		reported, err := r.actions.HasReport(ctx, id)
		if err != nil {
			return false, err
		}
		if reported {
			return false, nil
		}
	}
	applyTransition(session, domain.SessionStatusCompletedMatched, domain.EndReasonMutualVibe, at)
	return true, nil
}

func (r *InMemorySessionRepository) ListLiveStartedBefore(ctx context.Context, before time.Time) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Session
	for _, session := range r.sessions {
		if session.Status.IsLive() && session.StartedAt.Before(before) {
			s := *session
			result = append(result, &s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.Before(result[j].StartedAt) })
	return result, nil
}

func statusIn(status domain.SessionStatus, set []domain.SessionStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func applyTransition(session *domain.Session, to domain.SessionStatus, reason string, at time.Time) {
	session.Status = to
	if !to.IsLive() {
		ended := at
		session.EndedAt = &ended
		session.EndReason = reason
	}
}

type actionKey struct {
	sessionID uuid.UUID
	userID    string
	action    domain.Action
}

type InMemoryActionRepository struct {
	mu      sync.RWMutex
	byKey   map[actionKey]*domain.ActionOutcome
	ordered []*domain.ActionOutcome
}

func NewInMemoryActionRepository() *InMemoryActionRepository {
	return &InMemoryActionRepository{byKey: make(map[actionKey]*domain.ActionOutcome)}
}

func (r *InMemoryActionRepository) Append(ctx context.Context, outcome *domain.ActionOutcome) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := actionKey{sessionID: outcome.SessionID, userID: outcome.UserID, action: outcome.Action}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[key]; ok {
		return false, nil
	}
	o := *outcome
	r.byKey[key] = &o
	r.ordered = append(r.ordered, &o)
	return true, nil
}

func (r *InMemoryActionRepository) Get(ctx context.Context, sessionID uuid.UUID, userID string, action domain.Action) (*domain.ActionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byKey[actionKey{sessionID: sessionID, userID: userID, action: action}]
	if !ok {
		return nil, ErrActionNotFound
	}
	out := *o
	return &out, nil
}

func (r *InMemoryActionRepository) HasReport(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for key := range r.byKey {
		if key.sessionID == sessionID && key.action == domain.ActionReport {
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryActionRepository) SetPoints(ctx context.Context, id uuid.UUID, points int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.ordered {
		if o.ID == id {
			o.Points = points
			return nil
		}
	}
	return ErrActionNotFound
}

func (r *InMemoryActionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.ActionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.ActionOutcome
	for _, o := range r.ordered {
		if o.SessionID == sessionID {
			out := *o
			result = append(result, &out)
		}
	}
	return result, nil
}

func (r *InMemoryActionRepository) PointsForUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, o := range r.ordered {
		if o.UserID == userID {
			total += o.Points
		}
	}
	return total, nil
}

type InMemoryMatchRepository struct {
	mu      sync.RWMutex
	matches map[[2]string]*domain.Match
}

func NewInMemoryMatchRepository() *InMemoryMatchRepository {
	return &InMemoryMatchRepository{matches: make(map[[2]string]*domain.Match)}
}

func (r *InMemoryMatchRepository) Upsert(ctx context.Context, a, b string, sessionID uuid.UUID, at time.Time) (*domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lo, hi := domain.PairKey(a, b)
	key := [2]string{lo, hi}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[key]
	if !ok {
		m = &domain.Match{ID: uuid.New(), UserLow: lo, UserHigh: hi, CreatedAt: at}
		r.matches[key] = m
	}
	m.Status = domain.MatchStatusMatched
	m.Source = domain.MatchSourceSpeedDates
	m.SessionID = sessionID
	m.UpdatedAt = at

	out := *m
	return &out, nil
}

func (r *InMemoryMatchRepository) GetByPair(ctx context.Context, a, b string) (*domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lo, hi := domain.PairKey(a, b)

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[[2]string{lo, hi}]
	if !ok {
		return nil, ErrMatchNotFound
	}
	out := *m
	return &out, nil
}

type InMemoryIcebreakerRepository struct {
	mu      sync.RWMutex
	prompts []*domain.Icebreaker
}

func NewInMemoryIcebreakerRepository(prompts ...string) *InMemoryIcebreakerRepository {
	r := &InMemoryIcebreakerRepository{}
	for _, p := range prompts {
		r.prompts = append(r.prompts, &domain.Icebreaker{ID: uuid.New(), Prompt: p, Active: true})
	}
	return r
}

func (r *InMemoryIcebreakerRepository) Add(icebreaker *domain.Icebreaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ib := *icebreaker
	r.prompts = append(r.prompts, &ib)
}

func (r *InMemoryIcebreakerRepository) RandomActive(ctx context.Context) (*domain.Icebreaker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*domain.Icebreaker, 0, len(r.prompts))
	for _, p := range r.prompts {
		if p.Active {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil, ErrIcebreakerNotFound
	}
	out := *active[rand.Intn(len(active))]
	return &out, nil
}

type InMemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
}

func NewInMemoryProfileRepository() *InMemoryProfileRepository {
	return &InMemoryProfileRepository{profiles: make(map[string]*domain.Profile)}
}

func (r *InMemoryProfileRepository) Put(profile *domain.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := *profile
	r.profiles[profile.UserID] = &p
}

func (r *InMemoryProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := *p
	return &out, nil
}

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*domain.Room
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[uuid.UUID]*domain.Room),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm := *room
	r.rooms[room.ID] = &rm
	return nil
}

func (r *InMemoryRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	rm := *room
	return &rm, nil
}

func (r *InMemoryRoomRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, room := range r.rooms {
		if room.IsExpiredAt(now) {
			delete(r.rooms, id)
			deleted++
		}
	}
	return deleted, nil
}
