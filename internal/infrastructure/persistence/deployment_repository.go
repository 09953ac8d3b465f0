package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kiosk/backend/internal/domain/deployment"
	"github.com/kiosk/backend/internal/domain/shared"
)

// GormDeploymentRepository implements deployment.Repository using GORM
type GormDeploymentRepository struct {
	db *gorm.DB
}

// NewGormDeploymentRepository creates a new GormDeploymentRepository
func NewGormDeploymentRepository(db *gorm.DB) *GormDeploymentRepository {
	return &GormDeploymentRepository{db: db}
}

// FindByID finds a deployment by ID
func (r *GormDeploymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*deployment.Deployment, error) {
	var d deployment.Deployment
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Deployment not found")
		}
		return nil, err
	}
	return &d, nil
}

// FindByClientName finds a deployment by its unique client name
func (r *GormDeploymentRepository) FindByClientName(ctx context.Context, clientName string) (*deployment.Deployment, error) {
	var d deployment.Deployment
	if err := r.db.WithContext(ctx).First(&d, "client_name = ?", clientName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Deployment not found")
		}
		return nil, err
	}
	return &d, nil
}

func (r *GormDeploymentRepository) applyFilter(query *gorm.DB, filter deployment.Filter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Version != nil {
		query = query.Where("app_version = ?", *filter.Version)
	}
	return query
}

// FindAll finds deployments matching the filter, by client name
func (r *GormDeploymentRepository) FindAll(ctx context.Context, filter deployment.Filter) ([]deployment.Deployment, error) {
	var deployments []deployment.Deployment
	query := r.applyFilter(r.db.WithContext(ctx), filter).Order("client_name ASC")

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Find(&deployments).Error; err != nil {
		return nil, err
	}
	return deployments, nil
}

// Count counts deployments matching the filter
func (r *GormDeploymentRepository) Count(ctx context.Context, filter deployment.Filter) (int64, error) {
	var count int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&deployment.Deployment{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindStale returns ONLINE deployments not heard from since cutoff
func (r *GormDeploymentRepository) FindStale(ctx context.Context, cutoff time.Time) ([]deployment.Deployment, error) {
	var deployments []deployment.Deployment
	if err := r.db.WithContext(ctx).
		Where("status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)", deployment.StatusOnline, cutoff).
		Find(&deployments).Error; err != nil {
		return nil, err
	}
	return deployments, nil
}

// FindSilent returns deployments in any status not heard from since cutoff
func (r *GormDeploymentRepository) FindSilent(ctx context.Context, cutoff time.Time) ([]deployment.Deployment, error) {
	var deployments []deployment.Deployment
	if err := r.db.WithContext(ctx).
		Where("last_heartbeat IS NULL OR last_heartbeat < ?", cutoff).
		Order("client_name ASC").
		Find(&deployments).Error; err != nil {
		return nil, err
	}
	return deployments, nil
}

// Save creates or updates a deployment
func (r *GormDeploymentRepository) Save(ctx context.Context, d *deployment.Deployment) error {
	return r.db.WithContext(ctx).Save(d).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormDeploymentRepository) SaveWithLock(ctx context.Context, d *deployment.Deployment) error {
	result := r.db.WithContext(ctx).
		Model(d).
		Where("id = ? AND version = ?", d.ID, d.Version-1).
		Select("*").
		Updates(d)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("CONCURRENCY_CONFLICT", "Deployment was modified concurrently")
	}
	return nil
}
