package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	deploymentapp "github.com/kiosk/backend/internal/application/deployment"
	sessionapp "github.com/kiosk/backend/internal/application/session"
	terminalapp "github.com/kiosk/backend/internal/application/terminal"
	"github.com/kiosk/backend/internal/domain/session"
	"github.com/kiosk/backend/internal/domain/shared"
	"github.com/kiosk/backend/internal/domain/shared/valueobject"
	"github.com/kiosk/backend/internal/infrastructure/auth"
	"github.com/kiosk/backend/internal/infrastructure/billing"
	"github.com/kiosk/backend/internal/infrastructure/config"
	"github.com/kiosk/backend/internal/infrastructure/event"
	"github.com/kiosk/backend/internal/infrastructure/logger"
	"github.com/kiosk/backend/internal/infrastructure/notification"
	"github.com/kiosk/backend/internal/infrastructure/persistence"
	"github.com/kiosk/backend/internal/infrastructure/scheduler"
	"github.com/kiosk/backend/internal/infrastructure/telemetry"
	"github.com/kiosk/backend/internal/interfaces/http/handler"
	"github.com/kiosk/backend/internal/interfaces/http/middleware"
	"github.com/kiosk/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.Log)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Kiosk Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Connect to the database and migrate the schema
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	log.Info("Database connected")

	// Repositories
	terminalRepo := persistence.NewGormTerminalRepository(db.DB)
	sessionRepo := persistence.NewGormSessionRepository(db.DB)
	deploymentRepo := persistence.NewGormDeploymentRepository(db.DB)

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Metrics and the event-driven collector
	metrics := telemetry.NewMetrics()
	eventBus.Subscribe(telemetry.NewEventCollector(metrics))

	// Notification transports: the in-process hub always, Redis and NATS
	// when configured
	hub := notification.NewHub(log,
		notification.WithHubBufferSize(cfg.Notification.ClientBufferSize),
		notification.WithHubHeartbeat(cfg.Notification.Heartbeat),
	)
	if err := hub.Start(); err != nil {
		log.Fatal("Failed to start notification hub", zap.Error(err))
	}

	transports := []notification.Transport{hub}
	if cfg.Redis.Enabled {
		redisTransport, err := notification.NewRedisTransport(cfg.Redis, notification.WithRedisLogger(log))
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		transports = append(transports, redisTransport)
		log.Info("Redis transport enabled", zap.String("channel", cfg.Redis.Channel))
	}
	if cfg.NATS.Enabled {
		natsTransport, err := notification.NewNATSTransport(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		transports = append(transports, natsTransport)
		log.Info("NATS transport enabled", zap.String("subject_prefix", cfg.NATS.SubjectPrefix))
	}

	broadcaster := notification.NewBroadcasterWithOptions(log,
		[]notification.BroadcasterOption{notification.WithQueueSize(cfg.Notification.QueueSize)},
		transports...,
	)
	if err := broadcaster.Start(); err != nil {
		log.Fatal("Failed to start broadcaster", zap.Error(err))
	}
	defer broadcaster.Stop()
	eventBus.Subscribe(broadcaster)

	metrics.RegisterStreamClients(func() float64 { return float64(hub.ClientCount()) })
	metrics.RegisterNotificationsDropped(func() float64 { return float64(broadcaster.Dropped()) })

	// Balance ledger client, optional
	var ledger sessionapp.BalanceLedger
	if cfg.Ledger.Enabled {
		ledger = billing.NewLedgerHTTPClient(cfg.Ledger, log)
		log.Info("Balance ledger enabled", zap.String("base_url", cfg.Ledger.BaseURL))
	}

	// Application services
	clock := shared.SystemClock{}

	defaultRate, err := valueobject.NewMoneyUSDFromString(cfg.Billing.DefaultHourlyRate)
	if err != nil {
		log.Fatal("Invalid default hourly rate",
			zap.String("rate", cfg.Billing.DefaultHourlyRate), zap.Error(err))
	}

	statusService := terminalapp.NewStatusService(terminalRepo, eventBus, clock, log,
		terminalapp.StatusServiceConfig{StaleThreshold: cfg.Scheduler.TerminalStaleThreshold})
	billingService := sessionapp.NewBillingService(sessionRepo, terminalRepo, ledger, eventBus, clock, log,
		sessionapp.BillingServiceConfig{
			DefaultHourlyRate: defaultRate,
			Policy: session.BillingPolicy{
				RoundUpToHour:  cfg.Billing.RoundUpToHour,
				MinimumMinutes: cfg.Billing.MinimumMinutes,
			},
		})
	fleetService := deploymentapp.NewFleetService(deploymentRepo, eventBus, clock, log,
		deploymentapp.FleetServiceConfig{StaleThreshold: cfg.Scheduler.ClientStaleThreshold})

	// Background sweeps
	if cfg.Scheduler.Enabled {
		expirySweep := scheduler.NewSweepScheduler("session-expiry",
			func(ctx context.Context) (int, error) {
				start := time.Now()
				expired, err := billingService.ExpireOverdueSessions(ctx)
				metrics.ObserveExpirySweep(time.Since(start))
				return expired, err
			},
			log,
			scheduler.SweepConfig{
				Enabled:  true,
				Interval: cfg.Scheduler.ExpiryCheckInterval,
				Timeout:  time.Minute,
			})
		if err := expirySweep.Start(context.Background()); err != nil {
			log.Fatal("Failed to start expiry sweep", zap.Error(err))
		}
		defer func() {
			if err := expirySweep.Stop(context.Background()); err != nil {
				log.Error("Error stopping expiry sweep", zap.Error(err))
			}
		}()

		fleetSweep := scheduler.NewSweepScheduler("fleet-staleness",
			fleetService.MarkStaleClientsOffline,
			log,
			scheduler.SweepConfig{
				Enabled:  true,
				Interval: cfg.Scheduler.FleetCheckInterval,
				Timeout:  time.Minute,
			})
		if err := fleetSweep.Start(context.Background()); err != nil {
			log.Fatal("Failed to start fleet sweep", zap.Error(err))
		}
		defer func() {
			if err := fleetSweep.Stop(context.Background()); err != nil {
				log.Error("Error stopping fleet sweep", zap.Error(err))
			}
		}()

		log.Info("Background sweeps started",
			zap.Duration("expiry_interval", cfg.Scheduler.ExpiryCheckInterval),
			zap.Duration("fleet_interval", cfg.Scheduler.FleetCheckInterval),
		)
	}

	// HTTP handlers
	jwtService := auth.NewJWTService(cfg.JWT)

	terminalHandler := handler.NewTerminalHandler(statusService).
		WithHeartbeatCounter(metrics.HeartbeatsReceived.Inc)
	sessionHandler := handler.NewSessionHandler(billingService)
	deploymentHandler := handler.NewDeploymentHandler(fleetService)
	eventStreamHandler := handler.NewEventStreamHandler(hub)
	systemHandler := handler.NewSystemHandler(db.DB)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Probes and the scrape endpoint stay outside API versioning and auth
	systemHandler.RegisterHealthRoutes(engine)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.Logger = log

	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(middleware.JWTAuthMiddlewareWithConfig(jwtConfig)),
	)
	r.Register(terminalHandler).
		Register(sessionHandler).
		Register(deploymentHandler).
		Register(eventStreamHandler).
		Register(systemHandler)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
