package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/kiosk/backend/internal/domain/shared"
)

// SessionStartedEvent is raised when a session begins
type SessionStartedEvent struct {
	shared.BaseDomainEvent
	SessionID       uuid.UUID  `json:"session_id"`
	TerminalID      uuid.UUID  `json:"terminal_id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	AllottedMinutes int        `json:"allotted_minutes"`
	HourlyRate      string     `json:"hourly_rate"`
}

// EventType returns the event type name
func (e *SessionStartedEvent) EventType() string {
	return "SessionStarted"
}

// NewSessionStartedEvent creates a new SessionStartedEvent
func NewSessionStartedEvent(s *Session) *SessionStartedEvent {
	return &SessionStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("SessionStarted", "Session", s.ID),
		SessionID:       s.ID,
		TerminalID:      s.TerminalID,
		UserID:          s.UserID,
		StartTime:       s.StartTime,
		AllottedMinutes: s.AllottedMinutes,
		HourlyRate:      s.HourlyRate.StringFixed(2),
	}
}

// SessionExtendedEvent is raised when time is added to an active session
type SessionExtendedEvent struct {
	shared.BaseDomainEvent
	SessionID         uuid.UUID `json:"session_id"`
	TerminalID        uuid.UUID `json:"terminal_id"`
	AdditionalMinutes int       `json:"additional_minutes"`
	AllottedMinutes   int       `json:"allotted_minutes"`
}

// EventType returns the event type name
func (e *SessionExtendedEvent) EventType() string {
	return "SessionExtended"
}

// NewSessionExtendedEvent creates a new SessionExtendedEvent
func NewSessionExtendedEvent(s *Session, additionalMinutes int) *SessionExtendedEvent {
	return &SessionExtendedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("SessionExtended", "Session", s.ID),
		SessionID:         s.ID,
		TerminalID:        s.TerminalID,
		AdditionalMinutes: additionalMinutes,
		AllottedMinutes:   s.AllottedMinutes,
	}
}

// SessionEndedEvent is raised when a session leaves the ACTIVE state.
// It carries the final charge so billing consumers never recompute it.
type SessionEndedEvent struct {
	shared.BaseDomainEvent
	SessionID   uuid.UUID  `json:"session_id"`
	TerminalID  uuid.UUID  `json:"terminal_id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Reason      EndReason  `json:"reason"`
	EndTime     time.Time  `json:"end_time"`
	TotalAmount string     `json:"total_amount"`
}

// EventType returns the event type name
func (e *SessionEndedEvent) EventType() string {
	return "SessionEnded"
}

// NewSessionEndedEvent creates a new SessionEndedEvent
func NewSessionEndedEvent(s *Session) *SessionEndedEvent {
	endTime := s.StartTime
	if s.EndTime != nil {
		endTime = *s.EndTime
	}
	reason := EndReasonCompleted
	if s.EndReason != nil {
		reason = *s.EndReason
	}
	return &SessionEndedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("SessionEnded", "Session", s.ID),
		SessionID:       s.ID,
		TerminalID:      s.TerminalID,
		UserID:          s.UserID,
		Reason:          reason,
		EndTime:         endTime,
		TotalAmount:     s.TotalAmount.StringFixed(2),
	}
}
