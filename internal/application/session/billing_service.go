package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kiosk/backend/internal/domain/session"
	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/shared/valueobject"
	"github.com/kiosk/backend/internal/domain/terminal"
)

// BalanceLedger posts session charges to the venue's account system.
// Posting happens after a session has ended and been persisted; a ledger
// failure never rolls the session back.
type BalanceLedger interface {
	RecordCharge(ctx context.Context, userID, sessionID uuid.UUID, amount valueobject.Money) error
}

// StartSessionInput contains input for starting a session
type StartSessionInput struct {
	TerminalID      uuid.UUID  `json:"terminal_id" binding:"required"`
	UserID          *uuid.UUID `json:"user_id"`
	AllottedMinutes int        `json:"allotted_minutes" binding:"required,gt=0"`
	// HourlyRate overrides the venue default when present, e.g. "2.00"
	HourlyRate *string `json:"hourly_rate" binding:"omitempty,money"`
}

// ExtendSessionInput contains input for extending a session
type ExtendSessionInput struct {
	AdditionalMinutes int `json:"additional_minutes" binding:"required,gt=0"`
}

// EndSessionInput contains input for ending a session
type EndSessionInput struct {
	// Reason is COMPLETED or CANCELLED; EXPIRED is reserved for the
	// expiry sweep.
	Reason session.EndReason `json:"reason"`
}

// SessionResponse is the API view of a session
type SessionResponse struct {
	ID              uuid.UUID  `json:"id"`
	TerminalID      uuid.UUID  `json:"terminal_id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	Status          string     `json:"status"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	AllottedMinutes int        `json:"allotted_minutes"`
	HourlyRate      string     `json:"hourly_rate"`
	TotalAmount     string     `json:"total_amount"`
	EndReason       *string    `json:"end_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toSessionResponse(s *session.Session) *SessionResponse {
	resp := &SessionResponse{
		ID:              s.ID,
		TerminalID:      s.TerminalID,
		UserID:          s.UserID,
		Status:          string(s.Status),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		AllottedMinutes: s.AllottedMinutes,
		HourlyRate:      s.HourlyRate.StringFixed(2),
		TotalAmount:     s.TotalAmount.StringFixed(2),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.EndReason != nil {
		reason := string(*s.EndReason)
		resp.EndReason = &reason
	}
	return resp
}

// BillingServiceConfig contains configuration for BillingService
type BillingServiceConfig struct {
	DefaultHourlyRate valueobject.Money
	Policy            session.BillingPolicy
}

// DefaultBillingServiceConfig returns default configuration
func DefaultBillingServiceConfig() BillingServiceConfig {
	return BillingServiceConfig{
		DefaultHourlyRate: valueobject.NewMoneyUSDFromFloat(2.00),
		Policy:            session.DefaultBillingPolicy(),
	}
}

// BillingService runs the session lifecycle and computes charges
type BillingService struct {
	sessionRepo    session.Repository
	terminalRepo   terminal.Repository
	ledger         BalanceLedger
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	logger         *zap.Logger
	config         BillingServiceConfig
}

// NewBillingService creates a new BillingService
func NewBillingService(
	sessionRepo session.Repository,
	terminalRepo terminal.Repository,
	ledger BalanceLedger,
	eventPublisher shared.EventPublisher,
	clock shared.Clock,
	logger *zap.Logger,
	config BillingServiceConfig,
) *BillingService {
	return &BillingService{
		sessionRepo:    sessionRepo,
		terminalRepo:   terminalRepo,
		ledger:         ledger,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         logger,
		config:         config,
	}
}

// StartSession starts a session on a terminal. The terminal binding is the
// atomic check-and-set that serializes concurrent starts: of two racing
// requests exactly one binds, the other gets CONFLICT.
func (s *BillingService) StartSession(ctx context.Context, input StartSessionInput) (*SessionResponse, error) {
	rate := s.config.DefaultHourlyRate
	if input.HourlyRate != nil {
		parsed, err := valueobject.NewMoneyUSDFromString(*input.HourlyRate)
		if err != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "Invalid hourly rate")
		}
		rate = parsed
	}

	t, err := s.terminalRepo.FindByID(ctx, input.TerminalID)
	if err != nil {
		return nil, err
	}
	if t.Status == terminal.StatusLocked {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot start a session on a locked terminal")
	}

	sess, err := session.NewSession(input.TerminalID, input.UserID, s.clock.Now(), input.AllottedMinutes, rate)
	if err != nil {
		return nil, err
	}

	if err := s.terminalRepo.BindSession(ctx, input.TerminalID, sess.ID); err != nil {
		return nil, err
	}

	if err := s.sessionRepo.Save(ctx, sess); err != nil {
		// roll the binding back so the terminal is not stuck IN_SESSION
		if unbindErr := s.terminalRepo.UnbindSession(ctx, input.TerminalID); unbindErr != nil {
			s.logger.Error("Failed to unbind terminal after session save failure",
				zap.String("terminal_id", input.TerminalID.String()),
				zap.Error(unbindErr))
		}
		return nil, err
	}
	s.publishEvents(ctx, sess)

	s.logger.Info("Session started",
		zap.String("session_id", sess.ID.String()),
		zap.String("terminal_id", input.TerminalID.String()),
		zap.Int("allotted_minutes", input.AllottedMinutes))

	return toSessionResponse(sess), nil
}

// ExtendSession adds time to an active session
func (s *BillingService) ExtendSession(ctx context.Context, sessionID uuid.UUID, input ExtendSessionInput) (*SessionResponse, error) {
	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := sess.Extend(input.AdditionalMinutes); err != nil {
		return nil, err
	}

	if err := s.sessionRepo.SaveWithLock(ctx, sess); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, sess)

	s.logger.Info("Session extended",
		zap.String("session_id", sessionID.String()),
		zap.Int("additional_minutes", input.AdditionalMinutes),
		zap.Int("allotted_minutes", sess.AllottedMinutes))

	return toSessionResponse(sess), nil
}

// EndSession closes a session with the given reason. Racing enders are
// resolved by the optimistic lock: one writes the final charge, the other
// sees INVALID_STATE or CONCURRENCY_CONFLICT.
func (s *BillingService) EndSession(ctx context.Context, sessionID uuid.UUID, input EndSessionInput) (*SessionResponse, error) {
	reason := input.Reason
	if reason == "" {
		reason = session.EndReasonCompleted
	}
	if reason == session.EndReasonExpired {
		return nil, shared.NewDomainError("INVALID_INPUT", "EXPIRED is reserved for the expiry sweep")
	}

	sess, err := s.endWithReason(ctx, sessionID, reason)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

// endWithReason ends a session, frees its terminal and posts the charge
func (s *BillingService) endWithReason(ctx context.Context, sessionID uuid.UUID, reason session.EndReason) (*session.Session, error) {
	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := sess.End(reason, s.clock.Now(), s.config.Policy); err != nil {
		return nil, err
	}

	if err := s.sessionRepo.SaveWithLock(ctx, sess); err != nil {
		return nil, err
	}

	if err := s.terminalRepo.UnbindSession(ctx, sess.TerminalID); err != nil {
		s.logger.Error("Failed to unbind terminal after session end",
			zap.String("session_id", sessionID.String()),
			zap.String("terminal_id", sess.TerminalID.String()),
			zap.Error(err))
	}

	s.postCharge(ctx, sess)
	s.publishEvents(ctx, sess)

	s.logger.Info("Session ended",
		zap.String("session_id", sessionID.String()),
		zap.String("reason", string(reason)),
		zap.String("total_amount", sess.TotalAmount.StringFixed(2)))

	return sess, nil
}

// ExpireOverdueSessions ends every active session whose allotted time has
// run out. Each candidate is handled in isolation so one bad row never
// stalls the sweep; a candidate that lost a race (ended or extended
// concurrently) is skipped. Cancellation is honored between candidates,
// leaving already-ended sessions ended.
func (s *BillingService) ExpireOverdueSessions(ctx context.Context) (int, error) {
	candidates, err := s.sessionRepo.FindExpiredCandidates(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		id := candidates[i].ID
		if _, err := s.endWithReason(ctx, id, session.EndReasonExpired); err != nil {
			if isBenignExpiryRace(err) {
				continue
			}
			s.logger.Error("Failed to expire session",
				zap.String("session_id", id.String()),
				zap.Error(err))
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("Expiry sweep finished", zap.Int("expired", expired))
	}
	return expired, nil
}

// GetSession returns a session by ID
func (s *BillingService) GetSession(ctx context.Context, sessionID uuid.UUID) (*SessionResponse, error) {
	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

// GetActiveSessionForTerminal returns the terminal's active session
func (s *BillingService) GetActiveSessionForTerminal(ctx context.Context, terminalID uuid.UUID) (*SessionResponse, error) {
	sess, err := s.sessionRepo.FindActiveByTerminal(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

// ListSessions returns a paginated session history
func (s *BillingService) ListSessions(ctx context.Context, filter session.Filter) (*shared.Paginated[SessionResponse], error) {
	sessions, err := s.sessionRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.sessionRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, *toSessionResponse(&sessions[i]))
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// postCharge posts the final charge to the balance ledger, best effort
func (s *BillingService) postCharge(ctx context.Context, sess *session.Session) {
	if s.ledger == nil || sess.UserID == nil || !sess.TotalAmountMoney().IsPositive() {
		return
	}
	if err := s.ledger.RecordCharge(ctx, *sess.UserID, sess.ID, sess.TotalAmountMoney()); err != nil {
		s.logger.Error("Failed to post session charge to ledger",
			zap.String("session_id", sess.ID.String()),
			zap.String("user_id", sess.UserID.String()),
			zap.String("amount", sess.TotalAmount.StringFixed(2)),
			zap.Error(err))
	}
}

// publishEvents publishes the session's buffered domain events
func (s *BillingService) publishEvents(ctx context.Context, sess *session.Session) {
	if s.eventPublisher == nil {
		return
	}
	events := sess.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	sess.ClearDomainEvents()
}

// isBenignExpiryRace reports whether an expiry attempt failed only because
// another writer got to the session first.
func isBenignExpiryRace(err error) bool {
	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == "INVALID_STATE" ||
		domainErr.Code == "CONCURRENCY_CONFLICT" ||
		domainErr.Code == "NOT_FOUND"
}
