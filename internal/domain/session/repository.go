package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows session listings
type Filter struct {
	TerminalID *uuid.UUID
	UserID     *uuid.UUID
	Status     *Status
	Page       int
	PageSize   int
}

// Repository is the persistence contract for sessions
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Session, error)
	FindAll(ctx context.Context, filter Filter) ([]Session, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	// FindActiveByTerminal returns the terminal's active session, or a
	// NOT_FOUND domain error when the terminal is idle.
	FindActiveByTerminal(ctx context.Context, terminalID uuid.UUID) (*Session, error)

	// FindExpiredCandidates returns active sessions whose allotted time
	// has run out at instant now.
	FindExpiredCandidates(ctx context.Context, now time.Time) ([]Session, error)

	Save(ctx context.Context, s *Session) error

	// SaveWithLock persists the session guarded by its version; fails
	// with a CONCURRENCY_CONFLICT domain error when another writer got
	// there first.
	SaveWithLock(ctx context.Context, s *Session) error
}
