package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiosk/backend/internal/domain/shared/valueobject"
	"github.com/kiosk/backend/internal/infrastructure/config"
)

func TestLedgerHTTPClientRecordCharge(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()

	t.Run("posts the charge with credentials", func(t *testing.T) {
		var got chargeRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/charges", r.URL.Path)
			assert.Equal(t, "secret-key", r.Header.Get("X-API-Key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := NewLedgerHTTPClient(config.LedgerConfig{
			BaseURL: server.URL,
			APIKey:  "secret-key",
			Timeout: 5 * time.Second,
		}, zap.NewNop())

		amount, err := valueobject.NewMoneyUSDFromString("4.00")
		require.NoError(t, err)
		require.NoError(t, client.RecordCharge(context.Background(), userID, sessionID, amount))

		assert.Equal(t, userID.String(), got.UserID)
		assert.Equal(t, sessionID.String(), got.SessionID)
		assert.Equal(t, "4.00", got.Amount)
		assert.Equal(t, "USD", got.Currency)
	})

	t.Run("reports non-2xx responses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "insufficient funds", http.StatusPaymentRequired)
		}))
		defer server.Close()

		client := NewLedgerHTTPClient(config.LedgerConfig{BaseURL: server.URL}, zap.NewNop())

		amount, err := valueobject.NewMoneyUSDFromString("4.00")
		require.NoError(t, err)
		err = client.RecordCharge(context.Background(), userID, sessionID, amount)

		assert.ErrorContains(t, err, "402")
	})

	t.Run("reports unreachable ledgers", func(t *testing.T) {
		client := NewLedgerHTTPClient(config.LedgerConfig{
			BaseURL: "http://127.0.0.1:1",
			Timeout: 100 * time.Millisecond,
		}, zap.NewNop())

		amount, err := valueobject.NewMoneyUSDFromString("4.00")
		require.NoError(t, err)
		err = client.RecordCharge(context.Background(), userID, sessionID, amount)

		assert.Error(t, err)
	})
}
