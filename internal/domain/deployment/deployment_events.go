package deployment

import (
	"time"

	"github.com/google/uuid"

	"github.com/kiosk/backend/internal/domain/shared"
)

// DeploymentRegisteredEvent is raised when a client install is registered
type DeploymentRegisteredEvent struct {
	shared.BaseDomainEvent
	DeploymentID uuid.UUID `json:"deployment_id"`
	ClientName   string    `json:"client_name"`
	Hostname     string    `json:"hostname"`
	Version      string    `json:"version"`
}

// EventType returns the event type name
func (e *DeploymentRegisteredEvent) EventType() string {
	return "DeploymentRegistered"
}

// NewDeploymentRegisteredEvent creates a new DeploymentRegisteredEvent
func NewDeploymentRegisteredEvent(d *Deployment) *DeploymentRegisteredEvent {
	return &DeploymentRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("DeploymentRegistered", "Deployment", d.ID),
		DeploymentID:    d.ID,
		ClientName:      d.ClientName,
		Hostname:        d.Hostname,
		Version:         d.AppVersion,
	}
}

// DeploymentStatusChangedEvent is raised on every status transition
type DeploymentStatusChangedEvent struct {
	shared.BaseDomainEvent
	DeploymentID   uuid.UUID  `json:"deployment_id"`
	ClientName     string     `json:"client_name"`
	PreviousStatus Status     `json:"previous_status"`
	Status         Status     `json:"status"`
	Version        string     `json:"version"`
	TargetVersion  string     `json:"target_version,omitempty"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
}

// EventType returns the event type name
func (e *DeploymentStatusChangedEvent) EventType() string {
	return "DeploymentStatusChanged"
}

// NewDeploymentStatusChangedEvent creates a new DeploymentStatusChangedEvent
func NewDeploymentStatusChangedEvent(d *Deployment, previous Status) *DeploymentStatusChangedEvent {
	return &DeploymentStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("DeploymentStatusChanged", "Deployment", d.ID),
		DeploymentID:    d.ID,
		ClientName:      d.ClientName,
		PreviousStatus:  previous,
		Status:          d.Status,
		Version:         d.AppVersion,
		TargetVersion:   d.TargetVersion,
		LastHeartbeat:   d.LastHeartbeat,
	}
}

// DeploymentCommandIssuedEvent is raised when a deploy or update command is
// dispatched toward a client. Transports deliver it; the client reports the
// outcome back through CompleteCommand.
type DeploymentCommandIssuedEvent struct {
	shared.BaseDomainEvent
	DeploymentID  uuid.UUID `json:"deployment_id"`
	ClientName    string    `json:"client_name"`
	Hostname      string    `json:"hostname"`
	Command       string    `json:"command"`
	TargetVersion string    `json:"target_version"`
}

// EventType returns the event type name
func (e *DeploymentCommandIssuedEvent) EventType() string {
	return "DeploymentCommandIssued"
}

// NewDeploymentCommandIssuedEvent creates a new DeploymentCommandIssuedEvent
func NewDeploymentCommandIssuedEvent(d *Deployment, command string) *DeploymentCommandIssuedEvent {
	return &DeploymentCommandIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("DeploymentCommandIssued", "Deployment", d.ID),
		DeploymentID:    d.ID,
		ClientName:      d.ClientName,
		Hostname:        d.Hostname,
		Command:         command,
		TargetVersion:   d.TargetVersion,
	}
}
