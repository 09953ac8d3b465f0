package terminal

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/kiosk/backend/internal/domain/shared"
)

// Status represents the connectivity/occupancy state of a terminal
type Status string

const (
	StatusOffline   Status = "OFFLINE"
	StatusOnline    Status = "ONLINE"
	StatusInSession Status = "IN_SESSION"
	StatusLocked    Status = "LOCKED"
)

// IsValid returns true if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusOffline, StatusOnline, StatusInSession, StatusLocked:
		return true
	}
	return false
}

// Terminal represents a shared-access kiosk machine. A terminal holds at
// most one active session; CurrentSessionID is set exactly when the status
// is IN_SESSION.
type Terminal struct {
	shared.BaseAggregateRoot
	Name             string     `gorm:"type:varchar(100);not null"`
	IPAddress        string     `gorm:"type:varchar(45);not null"`
	MACAddress       string     `gorm:"type:varchar(17);not null;uniqueIndex"`
	Status           Status     `gorm:"type:varchar(20);not null;default:'OFFLINE';index"`
	LastSeen         *time.Time `gorm:"index"`
	CurrentSessionID *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (Terminal) TableName() string {
	return "terminals"
}

// NewTerminal creates a new terminal in the OFFLINE state
func NewTerminal(name, ipAddress, macAddress string) (*Terminal, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Terminal name cannot be empty")
	}
	if ipAddress != "" && net.ParseIP(ipAddress) == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid IP address %q", ipAddress))
	}
	if _, err := net.ParseMAC(macAddress); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid MAC address %q", macAddress))
	}

	t := &Terminal{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		IPAddress:         ipAddress,
		MACAddress:        macAddress,
		Status:            StatusOffline,
	}

	t.AddDomainEvent(NewTerminalRegisteredEvent(t))

	return t, nil
}

// RecordHeartbeat applies a liveness signal observed at observedAt.
// Stale or out-of-order heartbeats (observedAt <= LastSeen) are absorbed
// without effect. Returns whether LastSeen advanced and whether the status
// was promoted from OFFLINE to ONLINE.
func (t *Terminal) RecordHeartbeat(observedAt time.Time) (advanced bool, cameOnline bool) {
	if t.LastSeen != nil && !observedAt.After(*t.LastSeen) {
		return false, false
	}

	seen := observedAt.UTC()
	t.LastSeen = &seen
	t.UpdatedAt = time.Now().UTC()
	t.IncrementVersion()
	advanced = true

	if t.Status == StatusOffline {
		previous := t.Status
		t.Status = StatusOnline
		cameOnline = true
		t.AddDomainEvent(NewTerminalStatusUpdatedEvent(t, previous))
	}

	return advanced, cameOnline
}

// UpdateStatus sets the status directly. The IN_SESSION state is never set
// directly; it is only reachable through BindSession.
func (t *Terminal) UpdateStatus(status Status) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown terminal status %q", status))
	}
	if status == StatusInSession {
		return shared.NewDomainError("INVALID_STATE", "IN_SESSION is only reachable by binding a session")
	}
	if t.Status == status {
		return nil
	}
	if t.CurrentSessionID != nil {
		return shared.NewDomainError("INVALID_STATE", "Cannot change status while a session is bound")
	}

	previous := t.Status
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	t.IncrementVersion()

	t.AddDomainEvent(NewTerminalStatusUpdatedEvent(t, previous))

	return nil
}

// BindSession attaches an active session to the terminal and moves it to
// IN_SESSION. Fails with CONFLICT when a session is already bound; the
// persistence layer performs the equivalent check-and-set atomically.
func (t *Terminal) BindSession(sessionID uuid.UUID) error {
	if sessionID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Session ID cannot be empty")
	}
	if t.CurrentSessionID != nil {
		return shared.NewDomainError("CONFLICT", "Terminal already has a bound session")
	}
	if t.Status == StatusLocked {
		return shared.NewDomainError("INVALID_STATE", "Cannot start a session on a locked terminal")
	}

	previous := t.Status
	t.CurrentSessionID = &sessionID
	t.Status = StatusInSession
	t.UpdatedAt = time.Now().UTC()
	t.IncrementVersion()

	t.AddDomainEvent(NewTerminalStatusUpdatedEvent(t, previous))

	return nil
}

// UnbindSession detaches the bound session and returns the terminal to
// ONLINE. Unbinding an unbound terminal is a no-op.
func (t *Terminal) UnbindSession() {
	if t.CurrentSessionID == nil {
		return
	}

	previous := t.Status
	t.CurrentSessionID = nil
	t.Status = StatusOnline
	t.UpdatedAt = time.Now().UTC()
	t.IncrementVersion()

	t.AddDomainEvent(NewTerminalStatusUpdatedEvent(t, previous))
}

// MarkOffline transitions the terminal to OFFLINE after its heartbeat went
// stale. Terminals with a bound session are left alone; the session engine
// owns that state.
func (t *Terminal) MarkOffline() bool {
	if t.Status == StatusOffline || t.CurrentSessionID != nil {
		return false
	}

	previous := t.Status
	t.Status = StatusOffline
	t.UpdatedAt = time.Now().UTC()
	t.IncrementVersion()

	t.AddDomainEvent(NewTerminalStatusUpdatedEvent(t, previous))

	return true
}

// IsStale reports whether the terminal's last heartbeat is older than
// threshold at instant now. A terminal that never reported is stale.
func (t *Terminal) IsStale(now time.Time, threshold time.Duration) bool {
	if t.LastSeen == nil {
		return true
	}
	return now.Sub(*t.LastSeen) > threshold
}
