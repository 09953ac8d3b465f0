package deployment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiosk/backend/internal/domain/deployment"
	"github.com/kiosk/backend/internal/domain/shared"
)

// Mock implementations

type mockDeploymentRepository struct {
	mock.Mock
}

func (m *mockDeploymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*deployment.Deployment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deployment.Deployment), args.Error(1)
}

func (m *mockDeploymentRepository) FindByClientName(ctx context.Context, clientName string) (*deployment.Deployment, error) {
	args := m.Called(ctx, clientName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deployment.Deployment), args.Error(1)
}

func (m *mockDeploymentRepository) FindAll(ctx context.Context, filter deployment.Filter) ([]deployment.Deployment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]deployment.Deployment), args.Error(1)
}

func (m *mockDeploymentRepository) Count(ctx context.Context, filter deployment.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDeploymentRepository) FindStale(ctx context.Context, cutoff time.Time) ([]deployment.Deployment, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]deployment.Deployment), args.Error(1)
}

func (m *mockDeploymentRepository) FindSilent(ctx context.Context, cutoff time.Time) ([]deployment.Deployment, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]deployment.Deployment), args.Error(1)
}

func (m *mockDeploymentRepository) Save(ctx context.Context, d *deployment.Deployment) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockDeploymentRepository) SaveWithLock(ctx context.Context, d *deployment.Deployment) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// Test helpers

type fleetFixture struct {
	service   *FleetService
	repo      *mockDeploymentRepository
	publisher *mockEventPublisher
	clock     *shared.FakeClock
}

func newFleetFixture(t *testing.T) *fleetFixture {
	t.Helper()
	f := &fleetFixture{
		repo:      new(mockDeploymentRepository),
		publisher: new(mockEventPublisher),
		clock:     shared.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.service = NewFleetService(f.repo, f.publisher, f.clock, zap.NewNop(), DefaultFleetServiceConfig())
	return f
}

func notFoundErr() error {
	return shared.NewDomainError("NOT_FOUND", "Deployment not found")
}

func pendingDeployment(t *testing.T) *deployment.Deployment {
	t.Helper()
	d, err := deployment.NewDeployment("kiosk-floor1-01", "10.0.4.21", "1.4.0")
	require.NoError(t, err)
	d.ClearDomainEvents()
	return d
}

func onlineDeployment(t *testing.T) *deployment.Deployment {
	t.Helper()
	d := pendingDeployment(t)
	require.NoError(t, d.BeginDeploy("1.4.0"))
	require.NoError(t, d.CompleteCommand(true, ""))
	d.ClearDomainEvents()
	return d
}

func TestRegisterClient(t *testing.T) {
	ctx := context.Background()
	input := RegisterClientInput{ClientName: "kiosk-floor1-01", Hostname: "10.0.4.21", Version: "1.4.0"}

	t.Run("registers a new client", func(t *testing.T) {
		f := newFleetFixture(t)
		f.repo.On("FindByClientName", ctx, input.ClientName).Return(nil, notFoundErr())
		f.repo.On("Save", ctx, mock.Anything).Return(nil)
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

		resp, err := f.service.RegisterClient(ctx, input)

		require.NoError(t, err)
		assert.Equal(t, "PENDING", resp.Status)
		assert.Equal(t, "1.4.0", resp.Version)
	})

	t.Run("duplicate client name conflicts", func(t *testing.T) {
		f := newFleetFixture(t)
		f.repo.On("FindByClientName", ctx, input.ClientName).Return(pendingDeployment(t), nil)

		_, err := f.service.RegisterClient(ctx, input)

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ALREADY_EXISTS", domainErr.Code)
	})
}

func TestDeployAndReport(t *testing.T) {
	ctx := context.Background()

	t.Run("deploy issues a command notification", func(t *testing.T) {
		f := newFleetFixture(t)
		d := pendingDeployment(t)

		f.repo.On("FindByID", ctx, d.ID).Return(d, nil)
		f.repo.On("SaveWithLock", ctx, d).Return(nil)
		f.publisher.On("Publish", ctx, mock.MatchedBy(func(events []shared.DomainEvent) bool {
			var issued bool
			for _, e := range events {
				if e.EventType() == "DeploymentCommandIssued" {
					issued = true
				}
			}
			return issued
		})).Return(nil)

		resp, err := f.service.DeployToClient(ctx, d.ID, DeployInput{TargetVersion: "1.5.0"})

		require.NoError(t, err)
		assert.Equal(t, "DEPLOYING", resp.Status)
		assert.Equal(t, "1.5.0", resp.TargetVersion)
		f.publisher.AssertExpectations(t)
	})

	t.Run("successful report brings the client online on the target version", func(t *testing.T) {
		f := newFleetFixture(t)
		d := pendingDeployment(t)
		require.NoError(t, d.BeginDeploy("1.5.0"))
		d.ClearDomainEvents()

		f.repo.On("FindByID", ctx, d.ID).Return(d, nil)
		f.repo.On("SaveWithLock", ctx, d).Return(nil)
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

		resp, err := f.service.ReportCommandResult(ctx, d.ID, CommandResultInput{Success: true})

		require.NoError(t, err)
		assert.Equal(t, "ONLINE", resp.Status)
		assert.Equal(t, "1.5.0", resp.Version)
	})

	t.Run("failed report lands in ERROR", func(t *testing.T) {
		f := newFleetFixture(t)
		d := onlineDeployment(t)
		require.NoError(t, d.BeginUpdate("1.5.0"))
		d.ClearDomainEvents()

		f.repo.On("FindByID", ctx, d.ID).Return(d, nil)
		f.repo.On("SaveWithLock", ctx, d).Return(nil)
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

		resp, err := f.service.ReportCommandResult(ctx, d.ID, CommandResultInput{Success: false, Detail: "checksum mismatch"})

		require.NoError(t, err)
		assert.Equal(t, "ERROR", resp.Status)
		assert.Equal(t, "1.4.0", resp.Version)
	})

	t.Run("update refuses a client that is not online", func(t *testing.T) {
		f := newFleetFixture(t)
		d := pendingDeployment(t)

		f.repo.On("FindByID", ctx, d.ID).Return(d, nil)

		_, err := f.service.UpdateClientVersion(ctx, d.ID, DeployInput{TargetVersion: "1.5.0"})

		require.Error(t, err)
		f.repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})
}

func TestFleetHeartbeat(t *testing.T) {
	ctx := context.Background()

	t.Run("heartbeat revives an offline client", func(t *testing.T) {
		f := newFleetFixture(t)
		d := onlineDeployment(t)
		d.RecordHeartbeat(f.clock.Now().Add(-time.Hour), "1.4.0")
		require.True(t, d.MarkOffline())
		d.ClearDomainEvents()

		f.repo.On("FindByClientName", ctx, d.ClientName).Return(d, nil)
		f.repo.On("SaveWithLock", ctx, d).Return(nil)
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

		resp, err := f.service.RecordHeartbeat(ctx, d.ClientName, ClientHeartbeatInput{RunningVersion: "1.4.0"})

		require.NoError(t, err)
		assert.Equal(t, "ONLINE", resp.Status)
	})

	t.Run("stale heartbeat skips the write", func(t *testing.T) {
		f := newFleetFixture(t)
		d := onlineDeployment(t)
		d.RecordHeartbeat(f.clock.Now().Add(time.Minute), "1.4.0")
		d.ClearDomainEvents()

		f.repo.On("FindByClientName", ctx, d.ClientName).Return(d, nil)

		_, err := f.service.RecordHeartbeat(ctx, d.ClientName, ClientHeartbeatInput{RunningVersion: "1.4.0"})

		require.NoError(t, err)
		f.repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})
}

func TestMarkStaleClientsOffline(t *testing.T) {
	ctx := context.Background()

	t.Run("sweeps stale clients and counts them", func(t *testing.T) {
		f := newFleetFixture(t)
		cutoff := f.clock.Now().Add(-5 * time.Minute)

		stale := onlineDeployment(t)
		stale.RecordHeartbeat(f.clock.Now().Add(-time.Hour), "1.4.0")
		stale.ClearDomainEvents()

		f.repo.On("FindStale", ctx, cutoff).Return([]deployment.Deployment{*stale}, nil)
		f.repo.On("SaveWithLock", ctx, mock.Anything).Return(nil)
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

		marked, err := f.service.MarkStaleClientsOffline(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, marked)
	})

	t.Run("a cancelled context abandons the remaining candidates", func(t *testing.T) {
		f := newFleetFixture(t)
		cutoff := f.clock.Now().Add(-5 * time.Minute)

		stale := onlineDeployment(t)
		stale.RecordHeartbeat(f.clock.Now().Add(-time.Hour), "1.4.0")
		stale.ClearDomainEvents()

		ctx, cancel := context.WithCancel(context.Background())
		f.repo.On("FindStale", ctx, cutoff).Return([]deployment.Deployment{*stale}, nil)
		cancel()

		marked, err := f.service.MarkStaleClientsOffline(ctx)

		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, marked)
		f.repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("a client revived by a racing heartbeat is not counted", func(t *testing.T) {
		f := newFleetFixture(t)
		cutoff := f.clock.Now().Add(-5 * time.Minute)

		stale := onlineDeployment(t)
		stale.RecordHeartbeat(f.clock.Now().Add(-time.Hour), "1.4.0")
		stale.ClearDomainEvents()

		f.repo.On("FindStale", ctx, cutoff).Return([]deployment.Deployment{*stale}, nil)
		f.repo.On("SaveWithLock", ctx, mock.Anything).
			Return(shared.NewDomainError("CONCURRENCY_CONFLICT", "Deployment was modified concurrently"))

		marked, err := f.service.MarkStaleClientsOffline(ctx)

		require.NoError(t, err)
		assert.Zero(t, marked)
	})
}

func TestMaintenanceAndStatistics(t *testing.T) {
	ctx := context.Background()

	t.Run("maintenance toggle round trip", func(t *testing.T) {
		f := newFleetFixture(t)
		d := onlineDeployment(t)

		f.repo.On("FindByID", ctx, d.ID).Return(d, nil)
		f.repo.On("SaveWithLock", ctx, d).Return(nil)
		f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

		resp, err := f.service.SetMaintenance(ctx, d.ID, MaintenanceInput{Enabled: true})
		require.NoError(t, err)
		assert.Equal(t, "MAINTENANCE", resp.Status)

		resp, err = f.service.SetMaintenance(ctx, d.ID, MaintenanceInput{Enabled: false})
		require.NoError(t, err)
		assert.Equal(t, "OFFLINE", resp.Status)
	})

	t.Run("statistics summarize the whole fleet", func(t *testing.T) {
		f := newFleetFixture(t)
		online := onlineDeployment(t)
		offline := onlineDeployment(t)
		offline.RecordHeartbeat(f.clock.Now().Add(-time.Hour), "1.4.0")
		require.True(t, offline.MarkOffline())

		f.repo.On("FindAll", ctx, deployment.Filter{}).
			Return([]deployment.Deployment{*online, *offline}, nil)

		stats, err := f.service.GetStatistics(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Total)
		assert.Equal(t, int64(1), stats.ByStatus[deployment.StatusOnline])
		assert.Equal(t, int64(2), stats.ByVersion["1.4.0"])
		assert.InDelta(t, 50.0, stats.UptimePercentage, 0.001)
	})

	t.Run("offline listing is decided by heartbeat age, not status", func(t *testing.T) {
		f := newFleetFixture(t)
		cutoff := f.clock.Now().Add(-5 * time.Minute)

		silent := onlineDeployment(t)
		silent.RecordHeartbeat(f.clock.Now().Add(-40*time.Minute), "1.4.0")
		require.NoError(t, silent.SetMaintenance(true))
		silent.ClearDomainEvents()

		f.repo.On("FindSilent", ctx, cutoff).
			Return([]deployment.Deployment{*silent}, nil)

		offline, err := f.service.ListOfflineClients(ctx)

		require.NoError(t, err)
		require.Len(t, offline, 1)
		assert.Equal(t, silent.ClientName, offline[0].ClientName)
		assert.Equal(t, "MAINTENANCE", offline[0].Status)
	})

	t.Run("deployment logs are returned verbatim", func(t *testing.T) {
		f := newFleetFixture(t)
		d := onlineDeployment(t)

		f.repo.On("FindByID", ctx, d.ID).Return(d, nil)

		logs, err := f.service.GetDeploymentLogs(ctx, d.ID)

		require.NoError(t, err)
		assert.NotEmpty(t, logs)
	})
}
