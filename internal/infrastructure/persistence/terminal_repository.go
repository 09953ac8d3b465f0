package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/terminal"
)

// GormTerminalRepository implements terminal.Repository using GORM
type GormTerminalRepository struct {
	db *gorm.DB
}

// NewGormTerminalRepository creates a new GormTerminalRepository
func NewGormTerminalRepository(db *gorm.DB) *GormTerminalRepository {
	return &GormTerminalRepository{db: db}
}

// FindByID finds a terminal by ID
func (r *GormTerminalRepository) FindByID(ctx context.Context, id uuid.UUID) (*terminal.Terminal, error) {
	var t terminal.Terminal
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Terminal not found")
		}
		return nil, err
	}
	return &t, nil
}

// FindByMAC finds a terminal by MAC address
func (r *GormTerminalRepository) FindByMAC(ctx context.Context, mac string) (*terminal.Terminal, error) {
	var t terminal.Terminal
	if err := r.db.WithContext(ctx).First(&t, "mac_address = ?", mac).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Terminal not found")
		}
		return nil, err
	}
	return &t, nil
}

func (r *GormTerminalRepository) applyFilter(query *gorm.DB, filter terminal.Filter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// FindAll finds terminals matching the filter, newest first
func (r *GormTerminalRepository) FindAll(ctx context.Context, filter terminal.Filter) ([]terminal.Terminal, error) {
	var terminals []terminal.Terminal
	query := r.applyFilter(r.db.WithContext(ctx), filter).Order("created_at DESC")

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Find(&terminals).Error; err != nil {
		return nil, err
	}
	return terminals, nil
}

// Count counts terminals matching the filter
func (r *GormTerminalRepository) Count(ctx context.Context, filter terminal.Filter) (int64, error) {
	var count int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&terminal.Terminal{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindActiveSince returns non-offline terminals seen at or after cutoff
func (r *GormTerminalRepository) FindActiveSince(ctx context.Context, cutoff time.Time) ([]terminal.Terminal, error) {
	var terminals []terminal.Terminal
	if err := r.db.WithContext(ctx).
		Where("status <> ? AND last_seen >= ?", terminal.StatusOffline, cutoff).
		Order("name ASC").
		Find(&terminals).Error; err != nil {
		return nil, err
	}
	return terminals, nil
}

// FindStale returns non-offline terminals not seen since cutoff
func (r *GormTerminalRepository) FindStale(ctx context.Context, cutoff time.Time) ([]terminal.Terminal, error) {
	var terminals []terminal.Terminal
	if err := r.db.WithContext(ctx).
		Where("status <> ? AND (last_seen IS NULL OR last_seen < ?)", terminal.StatusOffline, cutoff).
		Find(&terminals).Error; err != nil {
		return nil, err
	}
	return terminals, nil
}

// Save creates or updates a terminal
func (r *GormTerminalRepository) Save(ctx context.Context, t *terminal.Terminal) error {
	return r.db.WithContext(ctx).Save(t).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormTerminalRepository) SaveWithLock(ctx context.Context, t *terminal.Terminal) error {
	result := r.db.WithContext(ctx).
		Model(t).
		Where("id = ? AND version = ?", t.ID, t.Version-1).
		Select("*").
		Updates(t)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("CONCURRENCY_CONFLICT", "Terminal was modified concurrently")
	}
	return nil
}

// BindSession attaches a session to an unbound, unlocked terminal with a
// single guarded UPDATE. The WHERE clause is the check, the UPDATE is the
// set; the database applies them as one step.
func (r *GormTerminalRepository) BindSession(ctx context.Context, terminalID, sessionID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&terminal.Terminal{}).
		Where("id = ? AND current_session_id IS NULL AND status <> ?", terminalID, terminal.StatusLocked).
		Updates(map[string]any{
			"current_session_id": sessionID,
			"status":             terminal.StatusInSession,
			"updated_at":         time.Now().UTC(),
			"version":            gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		t, err := r.FindByID(ctx, terminalID)
		if err != nil {
			return err
		}
		if t.Status == terminal.StatusLocked {
			return shared.NewDomainError("INVALID_STATE", "Cannot start a session on a locked terminal")
		}
		return shared.NewDomainError("CONFLICT", "Terminal already has an active session")
	}
	return nil
}

// UnbindSession clears the bound session with a single guarded UPDATE.
// Unbinding an unbound terminal is a no-op.
func (r *GormTerminalRepository) UnbindSession(ctx context.Context, terminalID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&terminal.Terminal{}).
		Where("id = ? AND current_session_id IS NOT NULL", terminalID).
		Updates(map[string]any{
			"current_session_id": nil,
			"status":             terminal.StatusOnline,
			"updated_at":         time.Now().UTC(),
			"version":            gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// already unbound, or the terminal is gone
		if _, err := r.FindByID(ctx, terminalID); err != nil {
			return err
		}
	}
	return nil
}
