package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presentation-api/internal/config"
	"presentation-api/internal/database"
	"presentation-api/internal/handler"
	"presentation-api/internal/middleware"
	"presentation-api/internal/model"
	"presentation-api/internal/repository"
	"presentation-api/internal/router"
	"presentation-api/internal/service"
	"presentation-api/internal/storage"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.New(cfg.UploadRoot, cfg.MaxUploadSize, cfg.AllowedMIMETypes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	revocationRepo := repository.NewRevocationRepository(pool)
	presentationRepo := repository.NewPresentationRepository(pool)
	slog.Info("database ready")

	tokenService := service.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	authService := service.NewAuthService(userRepo, revocationRepo, presentationRepo, tokenService)
	presentationService := service.NewPresentationService(presentationRepo, store, userRepo, cfg.BaseURL, cfg.ThumbnailRoot)

	authMiddleware := middleware.NewAuthMiddleware(tokenService, revocationRepo)
	ownershipMiddleware := middleware.NewOwnershipMiddleware(presentationRepo)

	authHandler := handler.NewAuthHandler(authService)
	// The request cap allows every slot plus a full image set at max size.
	maxRequestSize := cfg.MaxUploadSize * int64(len(model.FileSlots)+model.MaxSecurityImages+1)
	presentationHandler := handler.NewPresentationHandler(presentationService, maxRequestSize)

	appRouter := router.New(cfg, db, authMiddleware, ownershipMiddleware, authHandler, presentationHandler)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go authService.StartRevocationSweeper(sweepCtx, cfg.RevokedSweepInterval)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			func() {
				sweepCancel()
			},
			func() {
				db.Close()
			},
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
