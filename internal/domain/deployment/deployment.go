package deployment

import (
	"fmt"
	"time"

	"github.com/kiosk/backend/internal/domain/shared"
)

// Status represents the lifecycle state of a deployed client install
type Status string

const (
	StatusPending     Status = "PENDING"     // registered, nothing pushed yet
	StatusDeploying   Status = "DEPLOYING"   // install command issued
	StatusOnline      Status = "ONLINE"      // reporting heartbeats
	StatusOffline     Status = "OFFLINE"     // heartbeats went stale
	StatusUpdating    Status = "UPDATING"    // version push in flight
	StatusError       Status = "ERROR"       // last command failed
	StatusMaintenance Status = "MAINTENANCE" // operator override, sweeps skip it
)

// IsValid returns true if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDeploying, StatusOnline, StatusOffline,
		StatusUpdating, StatusError, StatusMaintenance:
		return true
	}
	return false
}

// LogEntry is one line of a deployment's append-only history. Action names
// the operation that produced the entry.
type LogEntry struct {
	Action    string    `json:"action"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Deployment tracks one client install across the fleet. Its log is
// append-only; entries are never rewritten or dropped.
type Deployment struct {
	shared.BaseAggregateRoot
	ClientName    string     `gorm:"type:varchar(100);not null;uniqueIndex"`
	Hostname      string     `gorm:"type:varchar(255);not null"`
	AppVersion    string     `gorm:"type:varchar(50);not null"`
	TargetVersion string     `gorm:"type:varchar(50)"`
	Status        Status     `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	LastHeartbeat *time.Time `gorm:"index"`
	Logs          []LogEntry `gorm:"serializer:json"`
}

// TableName returns the table name for GORM
func (Deployment) TableName() string {
	return "deployments"
}

// NewDeployment registers a client install in the PENDING state
func NewDeployment(clientName, hostname, version string) (*Deployment, error) {
	if clientName == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Client name cannot be empty")
	}
	if hostname == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Hostname cannot be empty")
	}
	if version == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Version cannot be empty")
	}

	d := &Deployment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ClientName:        clientName,
		Hostname:          hostname,
		AppVersion:        version,
		Status:            StatusPending,
	}

	d.appendLog("REGISTER", "INFO", fmt.Sprintf("Registered client %s at %s with version %s", clientName, hostname, version))
	d.AddDomainEvent(NewDeploymentRegisteredEvent(d))

	return d, nil
}

func (d *Deployment) appendLog(action, level, message string) {
	d.Logs = append(d.Logs, LogEntry{
		Action:    action,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (d *Deployment) transition(to Status, action, level, message string) {
	previous := d.Status
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	d.IncrementVersion()
	d.appendLog(action, level, message)
	d.AddDomainEvent(NewDeploymentStatusChangedEvent(d, previous))
}

// BeginDeploy marks the install command as issued. Only a PENDING or ERROR
// deployment can be (re)deployed.
func (d *Deployment) BeginDeploy(targetVersion string) error {
	if targetVersion == "" {
		return shared.NewDomainError("INVALID_INPUT", "Target version cannot be empty")
	}
	if d.Status != StatusPending && d.Status != StatusError {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot deploy to a %s client", d.Status))
	}

	d.TargetVersion = targetVersion
	d.transition(StatusDeploying, "DEPLOY", "INFO", fmt.Sprintf("Deploying version %s", targetVersion))

	return nil
}

// BeginUpdate marks a version push as in flight. Only an ONLINE deployment
// can be updated.
func (d *Deployment) BeginUpdate(targetVersion string) error {
	if targetVersion == "" {
		return shared.NewDomainError("INVALID_INPUT", "Target version cannot be empty")
	}
	if d.Status != StatusOnline {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot update a %s client", d.Status))
	}
	if targetVersion == d.AppVersion {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Client already runs version %s", targetVersion))
	}

	d.TargetVersion = targetVersion
	d.transition(StatusUpdating, "UPDATE", "INFO", fmt.Sprintf("Updating from %s to %s", d.AppVersion, targetVersion))

	return nil
}

// CompleteCommand resolves an in-flight deploy or update. On success the
// client adopts the target version and goes ONLINE; on failure it moves to
// ERROR and keeps its previous version.
func (d *Deployment) CompleteCommand(success bool, detail string) error {
	if d.Status != StatusDeploying && d.Status != StatusUpdating {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("No command in flight for a %s client", d.Status))
	}

	if success {
		if d.TargetVersion != "" {
			d.AppVersion = d.TargetVersion
		}
		d.TargetVersion = ""
		d.transition(StatusOnline, "REPORT", "INFO", fmt.Sprintf("Command succeeded, running version %s", d.AppVersion))
		return nil
	}

	if detail == "" {
		detail = "command failed"
	}
	d.TargetVersion = ""
	d.transition(StatusError, "REPORT", "ERROR", fmt.Sprintf("Command failed: %s", detail))

	return nil
}

// RecordHeartbeat applies a liveness signal from the client. Stale signals
// (observedAt <= LastHeartbeat) are absorbed. An OFFLINE client comes back
// ONLINE; clients with a command in flight or under maintenance keep their
// status.
func (d *Deployment) RecordHeartbeat(observedAt time.Time, runningVersion string) bool {
	if d.LastHeartbeat != nil && !observedAt.After(*d.LastHeartbeat) {
		return false
	}

	seen := observedAt.UTC()
	d.LastHeartbeat = &seen
	d.UpdatedAt = time.Now().UTC()
	d.IncrementVersion()

	if runningVersion != "" && runningVersion != d.AppVersion &&
		d.Status != StatusDeploying && d.Status != StatusUpdating {
		d.appendLog("HEARTBEAT", "WARN", fmt.Sprintf("Heartbeat reports version %s, expected %s", runningVersion, d.AppVersion))
		d.AppVersion = runningVersion
	}

	if d.Status == StatusOffline || d.Status == StatusPending {
		previous := d.Status
		d.Status = StatusOnline
		d.appendLog("HEARTBEAT", "INFO", "Client came online")
		d.AddDomainEvent(NewDeploymentStatusChangedEvent(d, previous))
	}

	return true
}

// MarkOffline transitions the client to OFFLINE after its heartbeat went
// stale. Clients under maintenance or with a command in flight are skipped.
func (d *Deployment) MarkOffline() bool {
	if d.Status != StatusOnline {
		return false
	}

	d.transition(StatusOffline, "OFFLINE", "WARN", "Heartbeat went stale, marking offline")

	return true
}

// SetMaintenance toggles the operator maintenance override. Entering
// maintenance parks the client regardless of state; leaving it returns the
// client to OFFLINE until the next heartbeat proves it alive.
func (d *Deployment) SetMaintenance(enabled bool) error {
	if enabled {
		if d.Status == StatusMaintenance {
			return nil
		}
		d.transition(StatusMaintenance, "MAINTENANCE", "INFO", "Entering maintenance")
		return nil
	}

	if d.Status != StatusMaintenance {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Client is %s, not under maintenance", d.Status))
	}
	d.transition(StatusOffline, "MAINTENANCE", "INFO", "Leaving maintenance")

	return nil
}

// IsStale reports whether the client's last heartbeat is older than
// threshold at instant now. A client that never reported is stale.
func (d *Deployment) IsStale(now time.Time, threshold time.Duration) bool {
	if d.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*d.LastHeartbeat) > threshold
}
