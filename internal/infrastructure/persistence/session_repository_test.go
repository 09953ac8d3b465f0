package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kiosk/backend/internal/domain/session"
	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/shared/valueobject"
)

func setupSessionTestDB(t *testing.T) *GormSessionRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&session.Session{}))
	return NewGormSessionRepository(db)
}

func saveTestSession(t *testing.T, repo *GormSessionRepository, terminalID uuid.UUID, start time.Time, minutes int) *session.Session {
	t.Helper()
	sess, err := session.NewSession(terminalID, nil, start, minutes, valueobject.NewMoneyUSDFromFloat(2.00))
	require.NoError(t, err)
	sess.ClearDomainEvents()
	require.NoError(t, repo.Save(context.Background(), sess))
	return sess
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	repo := setupSessionTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	terminalID := uuid.New()

	sess := saveTestSession(t, repo, terminalID, start, 60)

	t.Run("round trips money and status", func(t *testing.T) {
		found, err := repo.FindByID(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StatusActive, found.Status)
		assert.Equal(t, "2.00", found.HourlyRate.StringFixed(2))
		assert.Equal(t, 60, found.AllottedMinutes)
	})

	t.Run("finds the active session of a terminal", func(t *testing.T) {
		found, err := repo.FindActiveByTerminal(ctx, terminalID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, found.ID)

		_, err = repo.FindActiveByTerminal(ctx, uuid.New())
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "NOT_FOUND", domainErr.Code)
	})

	t.Run("ending persists the final charge once", func(t *testing.T) {
		found, err := repo.FindByID(ctx, sess.ID)
		require.NoError(t, err)
		require.NoError(t, found.End(session.EndReasonCompleted, start.Add(90*time.Minute), session.DefaultBillingPolicy()))

		require.NoError(t, repo.SaveWithLock(ctx, found))

		reloaded, err := repo.FindByID(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StatusCompleted, reloaded.Status)
		assert.Equal(t, "4.00", reloaded.TotalAmount.StringFixed(2))
		require.NotNil(t, reloaded.EndTime)

		// the terminal is free again
		_, err = repo.FindActiveByTerminal(ctx, terminalID)
		assert.Error(t, err)
	})
}

func TestSessionRepositoryExpiredCandidates(t *testing.T) {
	repo := setupSessionTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	overdue := saveTestSession(t, repo, uuid.New(), start, 60)
	running := saveTestSession(t, repo, uuid.New(), start, 180)

	ended := saveTestSession(t, repo, uuid.New(), start, 30)
	require.NoError(t, ended.End(session.EndReasonCompleted, start.Add(30*time.Minute), session.DefaultBillingPolicy()))
	require.NoError(t, repo.SaveWithLock(ctx, ended))

	t.Run("boundary is inclusive", func(t *testing.T) {
		candidates, err := repo.FindExpiredCandidates(ctx, start.Add(60*time.Minute))
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, overdue.ID, candidates[0].ID)
	})

	t.Run("running and ended sessions are not candidates", func(t *testing.T) {
		candidates, err := repo.FindExpiredCandidates(ctx, start.Add(59*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, candidates)

		candidates, err = repo.FindExpiredCandidates(ctx, start.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.NotEqual(t, running.ID, candidates[0].ID)
	})

	t.Run("listing filters by terminal and status", func(t *testing.T) {
		status := session.StatusActive
		sessions, err := repo.FindAll(ctx, session.Filter{Status: &status})
		require.NoError(t, err)
		assert.Len(t, sessions, 2)

		count, err := repo.Count(ctx, session.Filter{TerminalID: &overdue.TerminalID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestSessionRepositorySaveWithLockConflict(t *testing.T) {
	repo := setupSessionTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	sess := saveTestSession(t, repo, uuid.New(), start, 60)

	first, err := repo.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, sess.ID)
	require.NoError(t, err)

	require.NoError(t, first.Extend(30))
	require.NoError(t, repo.SaveWithLock(ctx, first))

	require.NoError(t, second.End(session.EndReasonExpired, start.Add(time.Hour), session.DefaultBillingPolicy()))
	err = repo.SaveWithLock(ctx, second)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "CONCURRENCY_CONFLICT", domainErr.Code)

	// the extension won; the session is still active
	reloaded, err := repo.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, reloaded.Status)
	assert.Equal(t, 90, reloaded.AllottedMinutes)
}
