package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/shared/valueobject"
)

// Test helpers
func createTestSession(t *testing.T) *Session {
	terminalID := uuid.New()
	rate := valueobject.NewMoneyUSDFromFloat(2.00)

	s, err := NewSession(terminalID, nil, time.Now(), 60, rate)
	require.NoError(t, err)
	return s
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

func TestNewSession(t *testing.T) {
	terminalID := uuid.New()
	rate := valueobject.NewMoneyUSDFromFloat(2.00)

	t.Run("creates active session with valid inputs", func(t *testing.T) {
		userID := uuid.New()
		start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

		s, err := NewSession(terminalID, &userID, start, 60, rate)

		require.NoError(t, err)
		assert.Equal(t, StatusActive, s.Status)
		assert.Equal(t, terminalID, s.TerminalID)
		assert.Equal(t, &userID, s.UserID)
		assert.Equal(t, start, s.StartTime)
		assert.Equal(t, 60, s.AllottedMinutes)
		assert.Nil(t, s.EndTime)
		assert.True(t, s.TotalAmountMoney().IsZero())
		assert.Equal(t, 1, s.Version)

		events := s.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "SessionStarted", events[0].EventType())
	})

	t.Run("rejects empty terminal ID", func(t *testing.T) {
		_, err := NewSession(uuid.Nil, nil, time.Now(), 60, rate)
		assertDomainCode(t, err, "INVALID_INPUT")
	})

	t.Run("rejects zero start time", func(t *testing.T) {
		_, err := NewSession(terminalID, nil, time.Time{}, 60, rate)
		assertDomainCode(t, err, "INVALID_INPUT")
	})

	t.Run("rejects non-positive allotted minutes", func(t *testing.T) {
		_, err := NewSession(terminalID, nil, time.Now(), 0, rate)
		assertDomainCode(t, err, "INVALID_INPUT")

		_, err = NewSession(terminalID, nil, time.Now(), -30, rate)
		assertDomainCode(t, err, "INVALID_INPUT")
	})

	t.Run("rejects negative hourly rate", func(t *testing.T) {
		_, err := NewSession(terminalID, nil, time.Now(), 60, valueobject.NewMoneyUSDFromFloat(-1.00))
		assertDomainCode(t, err, "INVALID_INPUT")
	})
}

func TestSessionExtend(t *testing.T) {
	t.Run("adds time to an active session", func(t *testing.T) {
		s := createTestSession(t)
		s.ClearDomainEvents()

		err := s.Extend(30)

		require.NoError(t, err)
		assert.Equal(t, 90, s.AllottedMinutes)
		assert.Equal(t, 2, s.Version)

		events := s.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "SessionExtended", events[0].EventType())
	})

	t.Run("rejects non-positive extension and leaves session unchanged", func(t *testing.T) {
		s := createTestSession(t)
		s.ClearDomainEvents()

		err := s.Extend(0)
		assertDomainCode(t, err, "INVALID_INPUT")

		err = s.Extend(-15)
		assertDomainCode(t, err, "INVALID_INPUT")

		assert.Equal(t, 60, s.AllottedMinutes)
		assert.Equal(t, 1, s.Version)
		assert.Empty(t, s.GetDomainEvents())
	})

	t.Run("rejects extension of an ended session", func(t *testing.T) {
		s := createTestSession(t)
		require.NoError(t, s.End(EndReasonCompleted, time.Now(), DefaultBillingPolicy()))

		err := s.Extend(30)
		assertDomainCode(t, err, "INVALID_STATE")
	})
}

func TestSessionEnd(t *testing.T) {
	policy := DefaultBillingPolicy()

	t.Run("completes session and charges rounded-up hours", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
		s, err := NewSession(uuid.New(), nil, start, 120, valueobject.NewMoneyUSDFromFloat(2.00))
		require.NoError(t, err)
		s.ClearDomainEvents()

		// 90 minutes used at $2.00/h rounds up to 2 hours
		err = s.End(EndReasonCompleted, start.Add(90*time.Minute), policy)

		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, s.Status)
		require.NotNil(t, s.EndTime)
		assert.Equal(t, start.Add(90*time.Minute), *s.EndTime)
		assert.Equal(t, "4.00", s.TotalAmount.StringFixed(2))
		require.NotNil(t, s.EndReason)
		assert.Equal(t, EndReasonCompleted, *s.EndReason)

		events := s.GetDomainEvents()
		require.Len(t, events, 1)
		ended, ok := events[0].(*SessionEndedEvent)
		require.True(t, ok)
		assert.Equal(t, "4.00", ended.TotalAmount)
		assert.Equal(t, EndReasonCompleted, ended.Reason)
	})

	t.Run("expired sessions are charged like completed ones", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
		s, err := NewSession(uuid.New(), nil, start, 60, valueobject.NewMoneyUSDFromFloat(3.00))
		require.NoError(t, err)

		err = s.End(EndReasonExpired, start.Add(60*time.Minute), policy)

		require.NoError(t, err)
		assert.Equal(t, StatusExpired, s.Status)
		assert.Equal(t, "3.00", s.TotalAmount.StringFixed(2))
	})

	t.Run("cancelled sessions are billed for elapsed time like any other end", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
		s, err := NewSession(uuid.New(), nil, start, 60, valueobject.NewMoneyUSDFromFloat(2.00))
		require.NoError(t, err)

		// 90 minutes used rounds up to 2 hours, same as a completed end
		err = s.End(EndReasonCancelled, start.Add(90*time.Minute), policy)

		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, s.Status)
		assert.Equal(t, "4.00", s.TotalAmount.StringFixed(2))
	})

	t.Run("ending twice fails and keeps the original charge", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
		s, err := NewSession(uuid.New(), nil, start, 60, valueobject.NewMoneyUSDFromFloat(2.00))
		require.NoError(t, err)

		require.NoError(t, s.End(EndReasonCompleted, start.Add(30*time.Minute), policy))
		firstEnd := *s.EndTime
		firstAmount := s.TotalAmount

		err = s.End(EndReasonCompleted, start.Add(5*time.Hour), policy)

		assertDomainCode(t, err, "INVALID_STATE")
		assert.Equal(t, firstEnd, *s.EndTime)
		assert.True(t, firstAmount.Equal(s.TotalAmount))
	})

	t.Run("rejects unknown end reason", func(t *testing.T) {
		s := createTestSession(t)
		err := s.End(EndReason("PAUSED"), time.Now(), policy)
		assertDomainCode(t, err, "INVALID_INPUT")
	})

	t.Run("clamps end time before start to zero elapsed", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
		s, err := NewSession(uuid.New(), nil, start, 60, valueobject.NewMoneyUSDFromFloat(2.00))
		require.NoError(t, err)

		err = s.End(EndReasonCompleted, start.Add(-time.Minute), policy)

		require.NoError(t, err)
		assert.Equal(t, start, *s.EndTime)
		assert.True(t, s.TotalAmountMoney().IsZero())
	})
}

func TestSessionExpiry(t *testing.T) {
	start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	t.Run("active session expires exactly when allotted time runs out", func(t *testing.T) {
		s, err := NewSession(uuid.New(), nil, start, 60, valueobject.NewMoneyUSDFromFloat(2.00))
		require.NoError(t, err)

		assert.False(t, s.IsExpiredAt(start.Add(59*time.Minute)))
		assert.True(t, s.IsExpiredAt(start.Add(60*time.Minute)))
		assert.True(t, s.IsExpiredAt(start.Add(2*time.Hour)))
	})

	t.Run("extension pushes the expiry boundary", func(t *testing.T) {
		s, err := NewSession(uuid.New(), nil, start, 60, valueobject.NewMoneyUSDFromFloat(2.00))
		require.NoError(t, err)

		require.NoError(t, s.Extend(30))

		assert.False(t, s.IsExpiredAt(start.Add(75*time.Minute)))
		assert.True(t, s.IsExpiredAt(start.Add(90*time.Minute)))
		assert.Equal(t, 15*time.Minute, s.Remaining(start.Add(75*time.Minute)))
	})

	t.Run("ended sessions never report expired", func(t *testing.T) {
		s, err := NewSession(uuid.New(), nil, start, 60, valueobject.NewMoneyUSDFromFloat(2.00))
		require.NoError(t, err)
		require.NoError(t, s.End(EndReasonCompleted, start.Add(30*time.Minute), DefaultBillingPolicy()))

		assert.False(t, s.IsExpiredAt(start.Add(3*time.Hour)))
	})
}
