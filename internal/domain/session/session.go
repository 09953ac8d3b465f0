package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/shared/valueobject"
)

// Status represents the lifecycle state of a session
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid returns true if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// EndReason says why a session left the ACTIVE state
type EndReason string

const (
	EndReasonCompleted EndReason = "COMPLETED" // user or staff closed it out
	EndReasonExpired   EndReason = "EXPIRED"   // allotted time ran out
	EndReasonCancelled EndReason = "CANCELLED" // staff voided the session
)

// terminalStatus maps an end reason to the terminal status it produces
func (r EndReason) terminalStatus() (Status, bool) {
	switch r {
	case EndReasonCompleted:
		return StatusCompleted, true
	case EndReasonExpired:
		return StatusExpired, true
	case EndReasonCancelled:
		return StatusCancelled, true
	}
	return "", false
}

// Session is a billed interval of terminal usage. TerminalID never changes
// after creation; EndTime and TotalAmount are written exactly once, when the
// session leaves the ACTIVE state.
type Session struct {
	shared.BaseAggregateRoot
	TerminalID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID          *uuid.UUID      `gorm:"type:uuid;index"`
	Status          Status          `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	StartTime       time.Time       `gorm:"not null"`
	EndTime         *time.Time      `gorm:"index"`
	AllottedMinutes int             `gorm:"not null"`
	HourlyRate      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	EndReason       *EndReason      `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (Session) TableName() string {
	return "sessions"
}

// NewSession starts a new active session on a terminal
func NewSession(terminalID uuid.UUID, userID *uuid.UUID, startTime time.Time, allottedMinutes int, hourlyRate valueobject.Money) (*Session, error) {
	if terminalID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Terminal ID cannot be empty")
	}
	if startTime.IsZero() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Start time is required")
	}
	if allottedMinutes <= 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Allotted minutes must be positive")
	}
	if hourlyRate.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Hourly rate cannot be negative")
	}

	s := &Session{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TerminalID:        terminalID,
		UserID:            userID,
		Status:            StatusActive,
		StartTime:         startTime.UTC(),
		AllottedMinutes:   allottedMinutes,
		HourlyRate:        hourlyRate.Amount(),
		TotalAmount:       decimal.Zero,
	}

	s.AddDomainEvent(NewSessionStartedEvent(s))

	return s, nil
}

// Extend adds time to an active session. The addition must be positive;
// anything else leaves the session unchanged.
func (s *Session) Extend(additionalMinutes int) error {
	if additionalMinutes <= 0 {
		return shared.NewDomainError("INVALID_INPUT", "Additional minutes must be positive")
	}
	if s.Status != StatusActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot extend a %s session", s.Status))
	}

	s.AllottedMinutes += additionalMinutes
	s.UpdatedAt = time.Now().UTC()
	s.IncrementVersion()

	s.AddDomainEvent(NewSessionExtendedEvent(s, additionalMinutes))

	return nil
}

// End closes an active session at instant now, computing the final charge
// under the given policy. Ending a session that already left ACTIVE fails
// with INVALID_STATE; the charge is therefore computed exactly once.
func (s *Session) End(reason EndReason, now time.Time, policy BillingPolicy) error {
	final, ok := reason.terminalStatus()
	if !ok {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown end reason %q", reason))
	}
	if s.Status != StatusActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot end a %s session", s.Status))
	}

	endedAt := now.UTC()
	if endedAt.Before(s.StartTime) {
		endedAt = s.StartTime
	}

	total := policy.Cost(endedAt.Sub(s.StartTime), s.HourlyRateMoney())

	s.Status = final
	s.EndTime = &endedAt
	s.EndReason = &reason
	s.TotalAmount = total.Amount()
	s.UpdatedAt = time.Now().UTC()
	s.IncrementVersion()

	s.AddDomainEvent(NewSessionEndedEvent(s))

	return nil
}

// Slot returns the session's allotted interval as a TimeSlot
func (s *Session) Slot() valueobject.TimeSlot {
	slot, _ := valueobject.NewTimeSlotMinutes(s.StartTime, s.AllottedMinutes)
	return slot
}

// IsExpiredAt reports whether the session is active and its allotted time
// has run out at instant now.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return s.Status == StatusActive && s.Slot().ExpiredAt(now)
}

// Remaining returns the allotted time left at instant now
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.Slot().Remaining(now)
}

// IsActive returns true if the session is active
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// HourlyRateMoney returns the hourly rate as Money
func (s *Session) HourlyRateMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(s.HourlyRate)
}

// TotalAmountMoney returns the final charge as Money
func (s *Session) TotalAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(s.TotalAmount)
}
