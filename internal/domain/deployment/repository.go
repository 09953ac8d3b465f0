package deployment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows deployment listings
type Filter struct {
	Status   *Status
	Version  *string
	Page     int
	PageSize int
}

// Repository is the persistence contract for deployments
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Deployment, error)
	FindByClientName(ctx context.Context, clientName string) (*Deployment, error)
	FindAll(ctx context.Context, filter Filter) ([]Deployment, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	// FindStale returns ONLINE deployments whose last heartbeat is
	// missing or before cutoff.
	FindStale(ctx context.Context, cutoff time.Time) ([]Deployment, error)

	// FindSilent returns deployments of any status whose last heartbeat
	// is missing or before cutoff.
	FindSilent(ctx context.Context, cutoff time.Time) ([]Deployment, error)

	Save(ctx context.Context, d *Deployment) error

	// SaveWithLock persists the deployment guarded by its version; fails
	// with a CONCURRENCY_CONFLICT domain error when another writer got
	// there first.
	SaveWithLock(ctx context.Context, d *Deployment) error
}
