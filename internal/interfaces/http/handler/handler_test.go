package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	applicationdeployment "github.com/kiosk/backend/internal/application/deployment"
	applicationsession "github.com/kiosk/backend/internal/application/session"
	applicationterminal "github.com/kiosk/backend/internal/application/terminal"
	"github.com/kiosk/backend/internal/domain/deployment"
	"github.com/kiosk/backend/internal/domain/session"
	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/terminal"
	"github.com/kiosk/backend/internal/infrastructure/auth"
	"github.com/kiosk/backend/internal/infrastructure/config"
	"github.com/kiosk/backend/internal/infrastructure/event"
	"github.com/kiosk/backend/internal/infrastructure/persistence"
	"github.com/kiosk/backend/internal/interfaces/http/dto"
	"github.com/kiosk/backend/internal/interfaces/http/middleware"
	"github.com/kiosk/backend/internal/interfaces/http/router"
)

// testAPI runs the full HTTP stack against an in-memory database so handler
// tests exercise routing, auth and error mapping end to end.
type testAPI struct {
	engine *gin.Engine
	clock  *shared.FakeClock
	tokens map[auth.Role]string
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&terminal.Terminal{}, &session.Session{}, &deployment.Deployment{}))

	logger := zap.NewNop()
	clock := shared.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	bus := event.NewInMemoryEventBus(logger)

	terminalRepo := persistence.NewGormTerminalRepository(db)
	sessionRepo := persistence.NewGormSessionRepository(db)
	deploymentRepo := persistence.NewGormDeploymentRepository(db)

	statusService := applicationterminal.NewStatusService(
		terminalRepo, bus, clock, logger, applicationterminal.DefaultStatusServiceConfig())
	billingService := applicationsession.NewBillingService(
		sessionRepo, terminalRepo, nil, bus, clock, logger, applicationsession.DefaultBillingServiceConfig())
	fleetService := applicationdeployment.NewFleetService(
		deploymentRepo, bus, clock, logger, applicationdeployment.DefaultFleetServiceConfig())

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:     "handler-test-secret",
		Expiration: time.Hour,
		Issuer:     "kiosk-test",
	})

	engine := gin.New()
	systemHandler := NewSystemHandler(db)
	systemHandler.RegisterHealthRoutes(engine)

	r := router.NewRouter(engine,
		router.WithMiddleware(
			middleware.RequestID(),
			middleware.JWTAuthMiddlewareWithConfig(middleware.DefaultJWTConfig(jwtService)),
		),
	)
	r.Register(NewTerminalHandler(statusService)).
		Register(NewSessionHandler(billingService)).
		Register(NewDeploymentHandler(fleetService)).
		Register(systemHandler)
	r.Setup()

	tokens := make(map[auth.Role]string)
	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleStaff, auth.RoleTerminal} {
		token, _, err := jwtService.GenerateToken(auth.GenerateTokenInput{
			UserID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			Name:   string(role),
			Role:   role,
		})
		require.NoError(t, err)
		tokens[role] = token
	}

	return &testAPI{engine: engine, clock: clock, tokens: tokens}
}

func (a *testAPI) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

// decodeResponse unmarshals the response envelope and, when data is non-nil,
// re-marshals the payload into the caller's type.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data any) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	if data != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec, nil)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Equal(t, code, resp.Error.Code)
}

func (a *testAPI) registerTerminal(t *testing.T, name, mac string) applicationterminal.TerminalResponse {
	t.Helper()
	rec := a.request(t, http.MethodPost, "/api/v1/terminals", a.tokens[auth.RoleAdmin],
		applicationterminal.RegisterTerminalInput{Name: name, IPAddress: "10.0.4.21", MACAddress: mac})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp applicationterminal.TerminalResponse
	decodeResponse(t, rec, &resp)
	return resp
}
