package terminal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows terminal listings
type Filter struct {
	Status   *Status
	Page     int
	PageSize int
}

// Repository is the persistence contract for terminals
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Terminal, error)
	FindByMAC(ctx context.Context, mac string) (*Terminal, error)
	FindAll(ctx context.Context, filter Filter) ([]Terminal, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	// FindActiveSince returns terminals whose status is not OFFLINE and
	// whose last heartbeat is at or after cutoff.
	FindActiveSince(ctx context.Context, cutoff time.Time) ([]Terminal, error)

	// FindStale returns terminals whose status is not OFFLINE but whose
	// last heartbeat is missing or before cutoff.
	FindStale(ctx context.Context, cutoff time.Time) ([]Terminal, error)

	Save(ctx context.Context, t *Terminal) error

	// SaveWithLock persists the terminal guarded by its version; fails
	// with a CONCURRENCY_CONFLICT domain error when another writer got
	// there first.
	SaveWithLock(ctx context.Context, t *Terminal) error

	// BindSession atomically attaches sessionID to an unbound, unlocked
	// terminal ("check binding is empty, then set" as one step). This is
	// the single serialization point preventing two sessions on one
	// terminal; it fails with a CONFLICT domain error when a session is
	// already bound.
	BindSession(ctx context.Context, terminalID, sessionID uuid.UUID) error

	// UnbindSession atomically clears the bound session and returns the
	// terminal to ONLINE. Unbinding an unbound terminal is a no-op.
	UnbindSession(ctx context.Context, terminalID uuid.UUID) error
}
