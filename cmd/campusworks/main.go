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

	"github.com/campusworks/campusworks/internal/app"
	"github.com/campusworks/campusworks/internal/audit"
	"github.com/campusworks/campusworks/internal/observability"
	"github.com/campusworks/campusworks/internal/organisations"
	"github.com/campusworks/campusworks/internal/platform/cache"
	"github.com/campusworks/campusworks/internal/platform/db"
	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
	"github.com/campusworks/campusworks/internal/users"
	"github.com/campusworks/campusworks/internal/years"
	"github.com/campusworks/campusworks/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	rbacRepo := rbac.NewRepository(pool)
	catalog := rbac.NewCatalog(rbacRepo, redisClient, cfg.CatalogCacheTTL, logger)

	mode := rbac.ModeMerge
	if cfg.AuthzLegacyMode {
		mode = rbac.ModeLegacy
	}
	resolver := rbac.NewResolver(rbacRepo, rbacRepo, rbacRepo, catalog,
		rbac.WithMode(mode),
		rbac.WithDecisionHook(metrics.RecordDecision),
	)

	rbacService := rbac.NewService(rbacRepo, catalog)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Resolver: resolver, Logger: logger}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rolesHandler := rbac.NewRolesHandler(logger, rbacService, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, jobClient, rbacMiddleware)

	yearsRepo := years.NewRepository(pool)
	yearsPolicy := years.NewPolicy(resolver)
	yearsService := years.NewService(yearsRepo, yearsPolicy, resolver, auditLogger, logger)
	yearsHandler := years.NewHandler(logger, yearsService)

	orgsRepo := organisations.NewRepository(pool)
	orgsService := organisations.NewService(orgsRepo)
	orgsHandler := organisations.NewHandler(logger, orgsService, rbacMiddleware)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, rbacService)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		RBACMiddleware:       rbacMiddleware,
		RolesHandler:         rolesHandler,
		PermissionsHandler:   permissionsHandler,
		YearsHandler:         yearsHandler,
		UsersHandler:         usersHandler,
		OrganisationsHandler: orgsHandler,
		AuditHandler:         auditHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
