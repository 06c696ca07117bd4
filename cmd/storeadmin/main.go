package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/app"
	"github.com/storeadmin/storeadmin/internal/auth"
	"github.com/storeadmin/storeadmin/internal/authz"
	"github.com/storeadmin/storeadmin/internal/dashboard"
	"github.com/storeadmin/storeadmin/internal/gate"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/observability"
	"github.com/storeadmin/storeadmin/internal/platform/cache"
	"github.com/storeadmin/storeadmin/internal/platform/db"
	"github.com/storeadmin/storeadmin/internal/shared"
	"github.com/storeadmin/storeadmin/internal/view"
	"github.com/storeadmin/storeadmin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig("storeadmin"), logger)
	if err != nil {
		logger.Error("init tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	dbpool, err := db.New(ctx, cfg.DBOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	routes := authz.DefaultRoutePermissions()
	if cfg.RoutePermissionsFile != "" {
		routes, err = authz.LoadRoutePermissionsFile(cfg.RoutePermissionsFile)
		if err != nil {
			logger.Error("load route permissions", slog.Any("error", err))
			os.Exit(1)
		}
	}
	engine := authz.NewEngine(routes)

	identityService := identity.NewService(
		identity.NewRepository(dbpool),
		identity.NewSessionStore(redisClient, cfg.SessionTTL).WithReuseGrace(cfg.ReuseGrace),
		identity.NewTokenIssuer(cfg.SessionSecret, cfg.TokenIssuer, cfg.AccessTokenTTL),
		logger,
	)
	accountRepo := accounts.NewRepository(dbpool)
	lookup := accounts.NewLookup(accountRepo, logger)

	redisOpts := cfg.RedisOptions().Queue()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret, cfg.IsProduction())
	cookies := cfg.CookieJar()

	accessGate := gate.New(gate.Params{
		Config:   cfg.GateConfig(),
		Sessions: identityService,
		Accounts: lookup,
		Engine:   engine,
		Cookies:  cookies,
		Metrics:  metrics,
		Logger:   logger,
	})

	authService := auth.NewService(identityService, lookup, accountRepo, jobClient, cfg.PublicURL, logger)
	authHandler := auth.NewHandler(logger, authService, templates, csrfManager, cookies, metrics, cfg.AuthRateLimit)
	dashboardHandler := dashboard.NewHandler(logger, templates, csrfManager, engine, accessGate, lookup, cfg.CORSAllowedOrigins)
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CSRFManager:      csrfManager,
		Gate:             accessGate,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Int("guarded_routes", len(routes)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
