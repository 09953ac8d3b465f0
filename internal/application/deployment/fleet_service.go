package deployment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kiosk/backend/internal/domain/deployment"
	"github.com/kiosk/backend/internal/domain/shared"
)

// RegisterClientInput contains input for registering a client install
type RegisterClientInput struct {
	ClientName string `json:"client_name" binding:"required"`
	Hostname   string `json:"hostname" binding:"required"`
	Version    string `json:"version" binding:"required"`
}

// DeployInput contains input for a deploy or update command
type DeployInput struct {
	TargetVersion string `json:"target_version" binding:"required"`
}

// CommandResultInput is the client's report on a finished command
type CommandResultInput struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// ClientHeartbeatInput contains input for a client heartbeat
type ClientHeartbeatInput struct {
	RunningVersion string `json:"running_version"`
}

// MaintenanceInput toggles the maintenance override
type MaintenanceInput struct {
	Enabled bool `json:"enabled"`
}

// DeploymentResponse is the API view of a deployment
type DeploymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	ClientName    string     `json:"client_name"`
	Hostname      string     `json:"hostname"`
	Version       string     `json:"version"`
	TargetVersion string     `json:"target_version,omitempty"`
	Status        string     `json:"status"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toDeploymentResponse(d *deployment.Deployment) *DeploymentResponse {
	return &DeploymentResponse{
		ID:            d.ID,
		ClientName:    d.ClientName,
		Hostname:      d.Hostname,
		Version:       d.AppVersion,
		TargetVersion: d.TargetVersion,
		Status:        string(d.Status),
		LastHeartbeat: d.LastHeartbeat,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// FleetServiceConfig contains configuration for FleetService
type FleetServiceConfig struct {
	// StaleThreshold is how long a client may go without a heartbeat
	// before the sweep marks it offline.
	StaleThreshold time.Duration
}

// DefaultFleetServiceConfig returns default configuration
func DefaultFleetServiceConfig() FleetServiceConfig {
	return FleetServiceConfig{StaleThreshold: 5 * time.Minute}
}

// FleetService monitors and commands the fleet of client installs
type FleetService struct {
	deploymentRepo deployment.Repository
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	logger         *zap.Logger
	staleThreshold time.Duration
}

// NewFleetService creates a new FleetService
func NewFleetService(
	deploymentRepo deployment.Repository,
	eventPublisher shared.EventPublisher,
	clock shared.Clock,
	logger *zap.Logger,
	config FleetServiceConfig,
) *FleetService {
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = DefaultFleetServiceConfig().StaleThreshold
	}
	return &FleetService{
		deploymentRepo: deploymentRepo,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         logger,
		staleThreshold: config.StaleThreshold,
	}
}

// RegisterClient registers a new client install in the fleet
func (s *FleetService) RegisterClient(ctx context.Context, input RegisterClientInput) (*DeploymentResponse, error) {
	if _, err := s.deploymentRepo.FindByClientName(ctx, input.ClientName); err == nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "A client with this name is already registered")
	} else if !isNotFound(err) {
		return nil, err
	}

	d, err := deployment.NewDeployment(input.ClientName, input.Hostname, input.Version)
	if err != nil {
		return nil, err
	}

	if err := s.deploymentRepo.Save(ctx, d); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, d)

	s.logger.Info("Client registered",
		zap.String("deployment_id", d.ID.String()),
		zap.String("client_name", d.ClientName),
		zap.String("version", d.AppVersion))

	return toDeploymentResponse(d), nil
}

// DeployToClient issues an install command toward a client. The command
// travels as a notification; the client reports the outcome back through
// ReportCommandResult.
func (s *FleetService) DeployToClient(ctx context.Context, deploymentID uuid.UUID, input DeployInput) (*DeploymentResponse, error) {
	return s.issueCommand(ctx, deploymentID, "DEPLOY", input.TargetVersion,
		func(d *deployment.Deployment) error { return d.BeginDeploy(input.TargetVersion) })
}

// UpdateClientVersion issues a version push toward an online client
func (s *FleetService) UpdateClientVersion(ctx context.Context, deploymentID uuid.UUID, input DeployInput) (*DeploymentResponse, error) {
	return s.issueCommand(ctx, deploymentID, "UPDATE", input.TargetVersion,
		func(d *deployment.Deployment) error { return d.BeginUpdate(input.TargetVersion) })
}

func (s *FleetService) issueCommand(
	ctx context.Context,
	deploymentID uuid.UUID,
	command string,
	targetVersion string,
	begin func(*deployment.Deployment) error,
) (*DeploymentResponse, error) {
	d, err := s.deploymentRepo.FindByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	if err := begin(d); err != nil {
		return nil, err
	}

	if err := s.deploymentRepo.SaveWithLock(ctx, d); err != nil {
		return nil, err
	}

	d.AddDomainEvent(deployment.NewDeploymentCommandIssuedEvent(d, command))
	s.publishEvents(ctx, d)

	s.logger.Info("Fleet command issued",
		zap.String("deployment_id", deploymentID.String()),
		zap.String("client_name", d.ClientName),
		zap.String("command", command),
		zap.String("target_version", targetVersion))

	return toDeploymentResponse(d), nil
}

// ReportCommandResult resolves an in-flight deploy or update with the
// outcome the client reported.
func (s *FleetService) ReportCommandResult(ctx context.Context, deploymentID uuid.UUID, input CommandResultInput) (*DeploymentResponse, error) {
	d, err := s.deploymentRepo.FindByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	if err := d.CompleteCommand(input.Success, input.Detail); err != nil {
		return nil, err
	}

	if err := s.deploymentRepo.SaveWithLock(ctx, d); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, d)

	s.logger.Info("Fleet command resolved",
		zap.String("deployment_id", deploymentID.String()),
		zap.String("client_name", d.ClientName),
		zap.Bool("success", input.Success),
		zap.String("status", string(d.Status)))

	return toDeploymentResponse(d), nil
}

// RecordHeartbeat applies a liveness signal reported by a client agent.
// Agents identify themselves by client name. Lost optimistic-lock races
// are dropped; the winning writer carried fresher state.
func (s *FleetService) RecordHeartbeat(ctx context.Context, clientName string, input ClientHeartbeatInput) (*DeploymentResponse, error) {
	d, err := s.deploymentRepo.FindByClientName(ctx, clientName)
	if err != nil {
		return nil, err
	}

	if !d.RecordHeartbeat(s.clock.Now(), input.RunningVersion) {
		return toDeploymentResponse(d), nil
	}

	if err := s.deploymentRepo.SaveWithLock(ctx, d); err != nil {
		if isConcurrencyConflict(err) {
			return toDeploymentResponse(d), nil
		}
		return nil, err
	}
	s.publishEvents(ctx, d)

	return toDeploymentResponse(d), nil
}

// SetMaintenance toggles the operator maintenance override
func (s *FleetService) SetMaintenance(ctx context.Context, deploymentID uuid.UUID, input MaintenanceInput) (*DeploymentResponse, error) {
	d, err := s.deploymentRepo.FindByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	if err := d.SetMaintenance(input.Enabled); err != nil {
		return nil, err
	}

	if err := s.deploymentRepo.SaveWithLock(ctx, d); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, d)

	s.logger.Info("Maintenance toggled",
		zap.String("deployment_id", deploymentID.String()),
		zap.Bool("enabled", input.Enabled))

	return toDeploymentResponse(d), nil
}

// MarkStaleClientsOffline sweeps ONLINE clients whose heartbeat went
// stale. Each candidate is handled in isolation; a client that lost a race
// with its own heartbeat stays online.
func (s *FleetService) MarkStaleClientsOffline(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.staleThreshold)

	stale, err := s.deploymentRepo.FindStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	marked := 0
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		d := &stale[i]
		if !d.MarkOffline() {
			continue
		}
		if err := s.deploymentRepo.SaveWithLock(ctx, d); err != nil {
			if isConcurrencyConflict(err) {
				continue
			}
			s.logger.Error("Failed to mark client offline",
				zap.String("deployment_id", d.ID.String()),
				zap.Error(err))
			continue
		}
		s.publishEvents(ctx, d)
		s.logger.Warn("Client marked offline",
			zap.String("deployment_id", d.ID.String()),
			zap.String("client_name", d.ClientName))
		marked++
	}
	return marked, nil
}

// GetDeployment returns a deployment by ID
func (s *FleetService) GetDeployment(ctx context.Context, deploymentID uuid.UUID) (*DeploymentResponse, error) {
	d, err := s.deploymentRepo.FindByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	return toDeploymentResponse(d), nil
}

// GetDeploymentLogs returns a deployment's append-only log
func (s *FleetService) GetDeploymentLogs(ctx context.Context, deploymentID uuid.UUID) ([]deployment.LogEntry, error) {
	d, err := s.deploymentRepo.FindByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	return d.Logs, nil
}

// ListDeployments returns a paginated fleet listing
func (s *FleetService) ListDeployments(ctx context.Context, filter deployment.Filter) (*shared.Paginated[DeploymentResponse], error) {
	deployments, err := s.deploymentRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.deploymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]DeploymentResponse, 0, len(deployments))
	for i := range deployments {
		items = append(items, *toDeploymentResponse(&deployments[i]))
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// ListOfflineClients returns clients not heard from within the staleness
// window. Age of the last heartbeat decides membership, not the recorded
// status, so a silent client under maintenance or mid-command still shows up.
func (s *FleetService) ListOfflineClients(ctx context.Context) ([]DeploymentResponse, error) {
	cutoff := s.clock.Now().Add(-s.staleThreshold)
	offline, err := s.deploymentRepo.FindSilent(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	items := make([]DeploymentResponse, 0, len(offline))
	for i := range offline {
		items = append(items, *toDeploymentResponse(&offline[i]))
	}
	return items, nil
}

// GetStatistics returns a point-in-time fleet summary
func (s *FleetService) GetStatistics(ctx context.Context) (*deployment.FleetStatistics, error) {
	all, err := s.deploymentRepo.FindAll(ctx, deployment.Filter{})
	if err != nil {
		return nil, err
	}
	stats := deployment.ComputeFleetStatistics(all)
	return &stats, nil
}

// publishEvents publishes the deployment's buffered domain events
func (s *FleetService) publishEvents(ctx context.Context, d *deployment.Deployment) {
	if s.eventPublisher == nil {
		return
	}
	events := d.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	d.ClearDomainEvents()
}

func isNotFound(err error) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "NOT_FOUND"
}

func isConcurrencyConflict(err error) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "CONCURRENCY_CONFLICT"
}
