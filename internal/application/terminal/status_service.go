package terminal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/terminal"
)

// RegisterTerminalInput contains input for registering a terminal
type RegisterTerminalInput struct {
	Name       string `json:"name" binding:"required"`
	IPAddress  string `json:"ip_address" binding:"omitempty,ip"`
	MACAddress string `json:"mac_address" binding:"required,mac"`
}

// HeartbeatInput contains input for a terminal heartbeat
type HeartbeatInput struct {
	// ObservedAt is when the kiosk agent took the reading; defaults to
	// the server clock when absent, so delayed retries carry their
	// original timestamp and get absorbed instead of rewinding LastSeen.
	ObservedAt *time.Time `json:"observed_at"`
}

// UpdateStatusInput contains input for a direct status change
type UpdateStatusInput struct {
	Status terminal.Status `json:"status" binding:"required"`
}

// TerminalResponse is the API view of a terminal
type TerminalResponse struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	IPAddress        string     `json:"ip_address"`
	MACAddress       string     `json:"mac_address"`
	Status           string     `json:"status"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	CurrentSessionID *uuid.UUID `json:"current_session_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toTerminalResponse(t *terminal.Terminal) *TerminalResponse {
	return &TerminalResponse{
		ID:               t.ID,
		Name:             t.Name,
		IPAddress:        t.IPAddress,
		MACAddress:       t.MACAddress,
		Status:           string(t.Status),
		LastSeen:         t.LastSeen,
		CurrentSessionID: t.CurrentSessionID,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// StatusServiceConfig contains configuration for StatusService
type StatusServiceConfig struct {
	// StaleThreshold is how long a terminal may go without a heartbeat
	// before it is considered offline.
	StaleThreshold time.Duration
}

// DefaultStatusServiceConfig returns default configuration
func DefaultStatusServiceConfig() StatusServiceConfig {
	return StatusServiceConfig{StaleThreshold: 2 * time.Minute}
}

// StatusService tracks terminal connectivity and occupancy
type StatusService struct {
	terminalRepo   terminal.Repository
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	logger         *zap.Logger
	staleThreshold time.Duration
}

// NewStatusService creates a new StatusService
func NewStatusService(
	terminalRepo terminal.Repository,
	eventPublisher shared.EventPublisher,
	clock shared.Clock,
	logger *zap.Logger,
	config StatusServiceConfig,
) *StatusService {
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = DefaultStatusServiceConfig().StaleThreshold
	}
	return &StatusService{
		terminalRepo:   terminalRepo,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         logger,
		staleThreshold: config.StaleThreshold,
	}
}

// RegisterTerminal registers a terminal, keyed by MAC address. Registering
// an already-known MAC returns the existing terminal, so kiosk provisioning
// scripts can run repeatedly.
func (s *StatusService) RegisterTerminal(ctx context.Context, input RegisterTerminalInput) (*TerminalResponse, error) {
	existing, err := s.terminalRepo.FindByMAC(ctx, input.MACAddress)
	if err == nil {
		s.logger.Debug("Terminal already registered",
			zap.String("mac_address", input.MACAddress),
			zap.String("terminal_id", existing.ID.String()))
		return toTerminalResponse(existing), nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	t, err := terminal.NewTerminal(input.Name, input.IPAddress, input.MACAddress)
	if err != nil {
		return nil, err
	}

	if err := s.terminalRepo.Save(ctx, t); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, t)

	s.logger.Info("Terminal registered",
		zap.String("terminal_id", t.ID.String()),
		zap.String("name", t.Name),
		zap.String("mac_address", t.MACAddress))

	return toTerminalResponse(t), nil
}

// Heartbeat records a liveness signal from a terminal. Heartbeats are
// commutative: stale signals are absorbed and a lost optimistic-lock race
// is dropped because the winning writer carried a newer timestamp.
func (s *StatusService) Heartbeat(ctx context.Context, terminalID uuid.UUID, input HeartbeatInput) (*TerminalResponse, error) {
	t, err := s.terminalRepo.FindByID(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	observedAt := s.clock.Now()
	if input.ObservedAt != nil {
		observedAt = *input.ObservedAt
	}

	advanced, cameOnline := t.RecordHeartbeat(observedAt)
	if !advanced {
		return toTerminalResponse(t), nil
	}

	if err := s.terminalRepo.SaveWithLock(ctx, t); err != nil {
		if isConcurrencyConflict(err) {
			s.logger.Debug("Heartbeat lost optimistic lock race, dropping",
				zap.String("terminal_id", terminalID.String()))
			return toTerminalResponse(t), nil
		}
		return nil, err
	}
	s.publishEvents(ctx, t)

	if cameOnline {
		s.logger.Info("Terminal came online", zap.String("terminal_id", terminalID.String()))
	}

	return toTerminalResponse(t), nil
}

// UpdateStatus applies a direct status change, e.g. locking a terminal
func (s *StatusService) UpdateStatus(ctx context.Context, terminalID uuid.UUID, input UpdateStatusInput) (*TerminalResponse, error) {
	t, err := s.terminalRepo.FindByID(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	if err := t.UpdateStatus(input.Status); err != nil {
		return nil, err
	}

	if err := s.terminalRepo.SaveWithLock(ctx, t); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, t)

	s.logger.Info("Terminal status updated",
		zap.String("terminal_id", terminalID.String()),
		zap.String("status", string(input.Status)))

	return toTerminalResponse(t), nil
}

// RequestUnlock broadcasts a staff notification that a user at a locked
// terminal wants it unlocked. No terminal state changes.
func (s *StatusService) RequestUnlock(ctx context.Context, terminalID uuid.UUID, userID *uuid.UUID) error {
	t, err := s.terminalRepo.FindByID(ctx, terminalID)
	if err != nil {
		return err
	}

	if t.Status != terminal.StatusLocked {
		return shared.NewDomainError("INVALID_STATE", "Terminal is not locked")
	}

	if s.eventPublisher != nil {
		_ = s.eventPublisher.Publish(ctx, terminal.NewUnlockRequestedEvent(t, userID))
	}

	s.logger.Info("Unlock requested", zap.String("terminal_id", terminalID.String()))

	return nil
}

// GetTerminal returns a terminal by ID
func (s *StatusService) GetTerminal(ctx context.Context, terminalID uuid.UUID) (*TerminalResponse, error) {
	t, err := s.terminalRepo.FindByID(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	return toTerminalResponse(t), nil
}

// ListTerminals returns a paginated terminal listing
func (s *StatusService) ListTerminals(ctx context.Context, filter terminal.Filter) (*shared.Paginated[TerminalResponse], error) {
	terminals, err := s.terminalRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.terminalRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]TerminalResponse, 0, len(terminals))
	for i := range terminals {
		items = append(items, *toTerminalResponse(&terminals[i]))
	}

	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// GetOnlineTerminals returns terminals with a fresh heartbeat. Terminals
// whose heartbeat went stale are marked offline on the way, so the listing
// never reports a dead kiosk as available.
func (s *StatusService) GetOnlineTerminals(ctx context.Context) ([]TerminalResponse, error) {
	cutoff := s.clock.Now().Add(-s.staleThreshold)

	stale, err := s.terminalRepo.FindStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for i := range stale {
		t := &stale[i]
		if !t.MarkOffline() {
			continue
		}
		if err := s.terminalRepo.SaveWithLock(ctx, t); err != nil {
			// a concurrent heartbeat revived it; leave it be
			if isConcurrencyConflict(err) {
				continue
			}
			return nil, err
		}
		s.publishEvents(ctx, t)
		s.logger.Warn("Terminal marked offline",
			zap.String("terminal_id", t.ID.String()),
			zap.String("name", t.Name))
	}

	active, err := s.terminalRepo.FindActiveSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	items := make([]TerminalResponse, 0, len(active))
	for i := range active {
		items = append(items, *toTerminalResponse(&active[i]))
	}
	return items, nil
}

// publishEvents publishes the terminal's buffered domain events
func (s *StatusService) publishEvents(ctx context.Context, t *terminal.Terminal) {
	if s.eventPublisher == nil {
		return
	}
	events := t.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	t.ClearDomainEvents()
}

func isNotFound(err error) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "NOT_FOUND"
}

func isConcurrencyConflict(err error) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "CONCURRENCY_CONFLICT"
}
