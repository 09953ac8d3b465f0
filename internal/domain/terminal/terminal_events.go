package terminal

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiosk/backend/internal/domain/shared"
)

// TerminalRegisteredEvent is raised when a new terminal is registered
type TerminalRegisteredEvent struct {
	shared.BaseDomainEvent
	TerminalID uuid.UUID `json:"terminal_id"`
	Name       string    `json:"name"`
	IPAddress  string    `json:"ip_address"`
	MACAddress string    `json:"mac_address"`
}

// EventType returns the event type name
func (e *TerminalRegisteredEvent) EventType() string {
	return "TerminalRegistered"
}

// NewTerminalRegisteredEvent creates a new TerminalRegisteredEvent
func NewTerminalRegisteredEvent(t *Terminal) *TerminalRegisteredEvent {
	return &TerminalRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("TerminalRegistered", "Terminal", t.ID),
		TerminalID:      t.ID,
		Name:            t.Name,
		IPAddress:       t.IPAddress,
		MACAddress:      t.MACAddress,
	}
}

// TerminalStatusUpdatedEvent is raised when a terminal changes status
type TerminalStatusUpdatedEvent struct {
	shared.BaseDomainEvent
	TerminalID     uuid.UUID  `json:"terminal_id"`
	Name           string     `json:"name"`
	PreviousStatus Status     `json:"previous_status"`
	Status         Status     `json:"status"`
	SessionID      *uuid.UUID `json:"session_id,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
}

// EventType returns the event type name
func (e *TerminalStatusUpdatedEvent) EventType() string {
	return "ClientStatusUpdated"
}

// NewTerminalStatusUpdatedEvent creates a new TerminalStatusUpdatedEvent
func NewTerminalStatusUpdatedEvent(t *Terminal, previous Status) *TerminalStatusUpdatedEvent {
	return &TerminalStatusUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ClientStatusUpdated", "Terminal", t.ID),
		TerminalID:      t.ID,
		Name:            t.Name,
		PreviousStatus:  previous,
		Status:          t.Status,
		SessionID:       t.CurrentSessionID,
		LastSeen:        t.LastSeen,
	}
}

// UnlockRequestedEvent is raised when a user at a locked terminal asks
// staff to unlock it. It carries no state change.
type UnlockRequestedEvent struct {
	shared.BaseDomainEvent
	TerminalID uuid.UUID  `json:"terminal_id"`
	Name       string     `json:"name"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
}

// EventType returns the event type name
func (e *UnlockRequestedEvent) EventType() string {
	return "UnlockRequested"
}

// NewUnlockRequestedEvent creates a new UnlockRequestedEvent
func NewUnlockRequestedEvent(t *Terminal, userID *uuid.UUID) *UnlockRequestedEvent {
	return &UnlockRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("UnlockRequested", "Terminal", t.ID),
		TerminalID:      t.ID,
		Name:            t.Name,
		UserID:          userID,
	}
}
