package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate creates or updates every table owned by this module.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Session{},
		&model.SessionAction{},
		&model.Match{},
		&model.Icebreaker{},
		&model.Profile{},
		&model.Room{},
	)
}

type PostgresSessionRepository struct {
	db *gorm.DB
}

func NewPostgresSessionRepository(db *gorm.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session == nil {
		return errors.New("session is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelSession(session)).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session model.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, storeErr(err)
	}

	return toDomainSession(&session), nil
}

func (r *PostgresSessionRepository) ActiveForUser(ctx context.Context, userID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session model.Session
	err := r.db.WithContext(ctx).
		Where("status IN ? AND (participant_a = ? OR participant_b = ?)", liveStatuses(), userID, userID).
		Order("started_at DESC").
		Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, storeErr(err)
	}

	return toDomainSession(&session), nil
}

func (r *PostgresSessionRepository) Transition(ctx context.Context, id uuid.UUID, from []domain.SessionStatus, to domain.SessionStatus, reason string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Updates(transitionUpdates(to, reason, at))
	if res.Error != nil {
		return false, storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, r.ensureExists(ctx, id)
	}
	return true, nil
}

func (r *PostgresSessionRepository) MarkMatched(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND status IN ?", id, liveStatuses()).
		Where("NOT EXISTS (SELECT 1 FROM session_actions WHERE session_actions.session_id = sessions.id AND session_actions.action = ?)", string(domain.ActionReport)).
		Updates(transitionUpdates(domain.SessionStatusCompletedMatched, domain.EndReasonMutualVibe, at))
	if res.Error != nil {
		return false, storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, r.ensureExists(ctx, id)
	}
	return true, nil
}

func (r *PostgresSessionRepository) ListLiveStartedBefore(ctx context.Context, before time.Time) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?", liveStatuses(), before.UTC()).
		Order("started_at").
		Find(&sessions).Error
	if err != nil {
		return nil, storeErr(err)
	}

	result := make([]*domain.Session, 0, len(sessions))
	for i := range sessions {
		result = append(result, toDomainSession(&sessions[i]))
	}
	return result, nil
}

func (r *PostgresSessionRepository) ensureExists(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return storeErr(err)
	}
	if count == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

type PostgresActionRepository struct {
	db *gorm.DB
}

func NewPostgresActionRepository(db *gorm.DB) *PostgresActionRepository {
	return &PostgresActionRepository{db: db}
}

func (r *PostgresActionRepository) Append(ctx context.Context, outcome *domain.ActionOutcome) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if outcome == nil {
		return false, errors.New("outcome is nil")
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(toModelAction(outcome))
	if res.Error != nil {
		return false, storeErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *PostgresActionRepository) Get(ctx context.Context, sessionID uuid.UUID, userID string, action domain.Action) (*domain.ActionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var row model.SessionAction
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ? AND action = ?", sessionID, userID, string(action)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActionNotFound
		}
		return nil, storeErr(err)
	}
	return toDomainAction(&row), nil
}

func (r *PostgresActionRepository) HasReport(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&model.SessionAction{}).
		Where("session_id = ? AND action = ?", sessionID, string(domain.ActionReport)).
		Count(&count).Error
	if err != nil {
		return false, storeErr(err)
	}
	return count > 0, nil
}

func (r *PostgresActionRepository) SetPoints(ctx context.Context, id uuid.UUID, points int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.SessionAction{}).Where("id = ?", id).Update("points", points)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrActionNotFound
	}
	return nil
}

func (r *PostgresActionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.ActionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.SessionAction
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, storeErr(err)
	}

	result := make([]*domain.ActionOutcome, 0, len(rows))
	for i := range rows {
		result = append(result, toDomainAction(&rows[i]))
	}
	return result, nil
}

func (r *PostgresActionRepository) PointsForUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var total int64
	err := r.db.WithContext(ctx).Model(&model.SessionAction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, storeErr(err)
	}
	return int(total), nil
}

type PostgresMatchRepository struct {
	db *gorm.DB
}

func NewPostgresMatchRepository(db *gorm.DB) *PostgresMatchRepository {
	return &PostgresMatchRepository{db: db}
}

func (r *PostgresMatchRepository) Upsert(ctx context.Context, a, b string, sessionID uuid.UUID, at time.Time) (*domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lo, hi := domain.PairKey(a, b)
	row := model.Match{
		ID:        uuid.New(),
		UserLow:   lo,
		UserHigh:  hi,
		Status:    domain.MatchStatusMatched,
		Source:    domain.MatchSourceSpeedDates,
		SessionID: sessionID,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_low"}, {Name: "user_high"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "source", "session_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, storeErr(err)
	}

	return r.GetByPair(ctx, lo, hi)
}

func (r *PostgresMatchRepository) GetByPair(ctx context.Context, a, b string) (*domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lo, hi := domain.PairKey(a, b)

	var row model.Match
	err := r.db.WithContext(ctx).Where("user_low = ? AND user_high = ?", lo, hi).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, storeErr(err)
	}

	return &domain.Match{
		ID:        row.ID,
		UserLow:   row.UserLow,
		UserHigh:  row.UserHigh,
		Status:    row.Status,
		Source:    row.Source,
		SessionID: row.SessionID,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

type PostgresIcebreakerRepository struct {
	db *gorm.DB
}

func NewPostgresIcebreakerRepository(db *gorm.DB) *PostgresIcebreakerRepository {
	return &PostgresIcebreakerRepository{db: db}
}

func (r *PostgresIcebreakerRepository) RandomActive(ctx context.Context) (*domain.Icebreaker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var row model.Icebreaker
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("RANDOM()").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIcebreakerNotFound
		}
		return nil, storeErr(err)
	}

	return &domain.Icebreaker{ID: row.ID, Prompt: row.Prompt, Active: row.Active}, nil
}

type PostgresProfileRepository struct {
	db *gorm.DB
}

func NewPostgresProfileRepository(db *gorm.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var row model.Profile
	err := r.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, storeErr(err)
	}

	return &domain.Profile{
		UserID:   row.UserID,
		Name:     row.Name,
		PhotoURL: row.PhotoURL,
		Age:      row.Age,
		Gender:   row.Gender,
	}, nil
}

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelRoom(room)).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, storeErr(err)
	}

	return toDomainRoom(&room), nil
}

func (r *PostgresRoomRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Delete(&model.Room{})
	if res.Error != nil {
		return 0, storeErr(res.Error)
	}
	return int(res.RowsAffected), nil
}

func liveStatuses() []string {
	return statusStrings(domain.LiveSessionStatuses)
}

func statusStrings(statuses []domain.SessionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func transitionUpdates(to domain.SessionStatus, reason string, at time.Time) map[string]any {
	updates := map[string]any{"status": string(to)}
	if !to.IsLive() {
		updates["ended_at"] = at.UTC()
		updates["end_reason"] = reason
	}
	return updates
}

func toModelSession(s *domain.Session) *model.Session {
	var endedAt *time.Time
	if s.EndedAt != nil {
		t := s.EndedAt.UTC()
		endedAt = &t
	}
	return &model.Session{
		ID:           s.ID,
		ParticipantA: s.ParticipantA,
		ParticipantB: s.ParticipantB,
		RoomID:       s.RoomID,
		RoomURL:      s.RoomURL,
		Status:       string(s.Status),
		IcebreakerID: s.IcebreakerID,
		Icebreaker:   s.Icebreaker,
		AnonymousA:   s.AnonymousA,
		AnonymousB:   s.AnonymousB,
		StartedAt:    s.StartedAt.UTC(),
		EndedAt:      endedAt,
		EndReason:    s.EndReason,
	}
}

func toDomainSession(s *model.Session) *domain.Session {
	var endedAt *time.Time
	if s.EndedAt != nil {
		t := s.EndedAt.UTC()
		endedAt = &t
	}
	return &domain.Session{
		ID:           s.ID,
		ParticipantA: s.ParticipantA,
		ParticipantB: s.ParticipantB,
		RoomID:       s.RoomID,
		RoomURL:      s.RoomURL,
		Status:       domain.SessionStatus(s.Status),
		IcebreakerID: s.IcebreakerID,
		Icebreaker:   s.Icebreaker,
		AnonymousA:   s.AnonymousA,
		AnonymousB:   s.AnonymousB,
		StartedAt:    s.StartedAt.UTC(),
		EndedAt:      endedAt,
		EndReason:    s.EndReason,
	}
}

func toModelAction(o *domain.ActionOutcome) *model.SessionAction {
	return &model.SessionAction{
		ID:           o.ID,
		SessionID:    o.SessionID,
		UserID:       o.UserID,
		Action:       string(o.Action),
		ReportReason: o.ReportReason,
		Points:       o.Points,
		CreatedAt:    o.CreatedAt.UTC(),
	}
}

func toDomainAction(o *model.SessionAction) *domain.ActionOutcome {
	return &domain.ActionOutcome{
		ID:           o.ID,
		SessionID:    o.SessionID,
		UserID:       o.UserID,
		Action:       domain.Action(o.Action),
		ReportReason: o.ReportReason,
		Points:       o.Points,
		CreatedAt:    o.CreatedAt.UTC(),
	}
}

func toModelRoom(room *domain.Room) *model.Room {
	var expiresAt *time.Time
	if !room.ExpiresAt.IsZero() {
		t := room.ExpiresAt.UTC()
		expiresAt = &t
	}

	return &model.Room{
		ID:        room.ID,
		SessionID: room.SessionID,
		Link:      room.Link,
		CreatedAt: room.CreatedAt.UTC(),
		ExpiresAt: expiresAt,
	}
}

func toDomainRoom(room *model.Room) *domain.Room {
	var expiresAt time.Time
	if room.ExpiresAt != nil {
		expiresAt = room.ExpiresAt.UTC()
	}

	return &domain.Room{
		ID:        room.ID,
		SessionID: room.SessionID,
		Link:      room.Link,
		CreatedAt: room.CreatedAt.UTC(),
		ExpiresAt: expiresAt,
	}
}
