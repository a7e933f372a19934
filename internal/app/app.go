package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dropbeam/dropbeam/internal/config"
	"github.com/dropbeam/dropbeam/internal/db"
	"github.com/dropbeam/dropbeam/internal/hub"
	"github.com/dropbeam/dropbeam/internal/repository"
	"github.com/dropbeam/dropbeam/internal/service"
	"github.com/dropbeam/dropbeam/internal/storage"
	"github.com/dropbeam/dropbeam/internal/validation"
)

type App struct {
	Cfg            *config.Config
	DB             *sqlx.DB
	Hub            *hub.Hub
	SessionService *service.SessionService
	UploadService  *service.UploadService
	Sweeper        *service.Sweeper
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	sessionRepository := repository.NewSessionRepository(database)

	// Storage
	fileStorage, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	// Quota policy
	limits := validation.Limits{
		MaxFileSizeBytes: cfg.MaxFileSizeBytes,
		MaxSessionBytes:  cfg.MaxSessionBytes,
		MaxDuration:      cfg.MaxExpiry,
	}
	if len(cfg.AllowedMimeTypes) > 0 {
		limits.AllowedMimeTypes = make(map[string]bool, len(cfg.AllowedMimeTypes))
		for _, m := range cfg.AllowedMimeTypes {
			limits.AllowedMimeTypes[m] = true
		}
	}

	// Services
	eventHub := hub.New(cfg.EventBufferSize)
	qrService := service.NewQRService(cfg.QRSize)
	sessionService := service.NewSessionService(
		sessionRepository,
		fileStorage,
		qrService,
		eventHub,
		limits,
		cfg.AppURL,
		cfg.DefaultExpiry,
		cfg.S3PresignExpiry,
	)
	uploadService := service.NewUploadService(
		sessionService,
		fileStorage,
		eventHub,
		limits,
		cfg.RecommendedChunkSize,
		cfg.MaxChunkSize,
		cfg.TargetChunkCount,
		cfg.UploadInactivityTimeout,
	)
	sweeper := service.NewSweeper(sessionService, uploadService, cfg.SweepInterval)

	return &App{
		Cfg:            cfg,
		DB:             database,
		Hub:            eventHub,
		SessionService: sessionService,
		UploadService:  uploadService,
		Sweeper:        sweeper,
	}, nil
}

func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
