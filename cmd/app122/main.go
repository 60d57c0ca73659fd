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

	"github.com/hotwellkz/app122/internal/account"
	"github.com/hotwellkz/app122/internal/app"
	"github.com/hotwellkz/app122/internal/auth"
	"github.com/hotwellkz/app122/internal/observability"
	"github.com/hotwellkz/app122/internal/platform/cache"
	"github.com/hotwellkz/app122/internal/platform/db"
	"github.com/hotwellkz/app122/internal/roster"
	"github.com/hotwellkz/app122/internal/shared"
	"github.com/hotwellkz/app122/internal/view"
	"github.com/hotwellkz/app122/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "app122_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	changePublisher := roster.NewPublisher(redisClient, cfg.RosterChannel)

	accountRepo := account.NewRepository(dbpool)
	accountService := account.NewService(logger, accountRepo, changePublisher)
	controller := account.NewController(logger, accountService, authService)
	accountHandler := account.NewHandler(logger, accountService, controller, templates, csrfManager)

	rosterRepo := roster.NewRepository(dbpool)
	synchronizer := roster.NewSynchronizer(logger, rosterRepo, redisClient, cfg.RosterChannel)
	synchronizer.SetSwapObserver(metrics.ObserveRosterSwap)
	if err := synchronizer.Start(ctx); err != nil {
		logger.Warn("roster synchronizer start", slog.Any("error", err))
	}
	defer synchronizer.Stop()

	rosterHandler := roster.NewHandler(logger, synchronizer, controller, templates, csrfManager)

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

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		RosterHandler:  rosterHandler,
		AccountHandler: accountHandler,
		JobsHandler:    jobHandler,
		Metrics:        metrics,
	})

	// No WriteTimeout: the roster stream holds its response open and its
	// heartbeat keeps the connection alive. Non-stream requests are bounded
	// by the request timeout middleware.
	server := &http.Server{
		Addr:        cfg.AppAddr,
		Handler:     router,
		ReadTimeout: cfg.AppReadTimeout,
		IdleTimeout: cfg.AppIdleTimeout,
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
