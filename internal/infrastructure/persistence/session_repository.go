package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kiosk/backend/internal/domain/session"
	"github.com/kiosk/backend/internal/domain/shared"
)

// GormSessionRepository implements session.Repository using GORM
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// FindByID finds a session by ID
func (r *GormSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	var s session.Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Session not found")
		}
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) applyFilter(query *gorm.DB, filter session.Filter) *gorm.DB {
	if filter.TerminalID != nil {
		query = query.Where("terminal_id = ?", *filter.TerminalID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// FindAll finds sessions matching the filter, newest first
func (r *GormSessionRepository) FindAll(ctx context.Context, filter session.Filter) ([]session.Session, error) {
	var sessions []session.Session
	query := r.applyFilter(r.db.WithContext(ctx), filter).Order("start_time DESC")

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// Count counts sessions matching the filter
func (r *GormSessionRepository) Count(ctx context.Context, filter session.Filter) (int64, error) {
	var count int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&session.Session{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindActiveByTerminal returns the terminal's single active session
func (r *GormSessionRepository) FindActiveByTerminal(ctx context.Context, terminalID uuid.UUID) (*session.Session, error) {
	var s session.Session
	if err := r.db.WithContext(ctx).
		First(&s, "terminal_id = ? AND status = ?", terminalID, session.StatusActive).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Terminal has no active session")
		}
		return nil, err
	}
	return &s, nil
}

// FindExpiredCandidates returns active sessions whose allotted time has run
// out at instant now. The boundary is inclusive: a session is a candidate
// the moment start_time + allotted equals now. Active sessions are bounded
// by the number of terminals, so the expiry predicate runs in process and
// stays identical to the domain rule.
func (r *GormSessionRepository) FindExpiredCandidates(ctx context.Context, now time.Time) ([]session.Session, error) {
	var active []session.Session
	if err := r.db.WithContext(ctx).
		Where("status = ?", session.StatusActive).
		Order("start_time ASC").
		Find(&active).Error; err != nil {
		return nil, err
	}

	candidates := make([]session.Session, 0, len(active))
	for i := range active {
		if active[i].IsExpiredAt(now) {
			candidates = append(candidates, active[i])
		}
	}
	return candidates, nil
}

// Save creates or updates a session
func (r *GormSessionRepository) Save(ctx context.Context, s *session.Session) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormSessionRepository) SaveWithLock(ctx context.Context, s *session.Session) error {
	result := r.db.WithContext(ctx).
		Model(s).
		Where("id = ? AND version = ?", s.ID, s.Version-1).
		Select("*").
		Updates(s)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("CONCURRENCY_CONFLICT", "Session was modified concurrently")
	}
	return nil
}
