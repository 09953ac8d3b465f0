package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	applicationsession "github.com/kiosk/backend/internal/application/session"
	"github.com/kiosk/backend/internal/domain/shared/valueobject"
	"github.com/kiosk/backend/internal/infrastructure/config"
)

// LedgerHTTPClient posts session charges to the venue's balance ledger. It
// implements the application's BalanceLedger port; the caller treats failures
// as best effort, so this client only reports them.
type LedgerHTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLedgerHTTPClient creates a ledger client from config
func NewLedgerHTTPClient(cfg config.LedgerConfig, logger *zap.Logger) *LedgerHTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LedgerHTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type chargeRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// RecordCharge debits the user's balance for a finished session
func (c *LedgerHTTPClient) RecordCharge(ctx context.Context, userID, sessionID uuid.UUID, amount valueobject.Money) error {
	body, err := json.Marshal(chargeRequest{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		Amount:    amount.Amount().StringFixed(2),
		Currency:  string(amount.Currency()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal charge: %w", err)
	}

	url := c.baseURL + "/api/v1/charges"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("ledger rejected charge",
			zap.String("session_id", sessionID.String()),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail),
		)
		return fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}

	c.logger.Debug("charge recorded",
		zap.String("session_id", sessionID.String()),
		zap.String("amount", amount.Amount().StringFixed(2)),
	)
	return nil
}

// Ensure LedgerHTTPClient implements BalanceLedger
var _ applicationsession.BalanceLedger = (*LedgerHTTPClient)(nil)
