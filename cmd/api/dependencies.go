package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/caseledger/bankfeed/internal/domain/account"
	"github.com/caseledger/bankfeed/internal/domain/categorization"
	"github.com/caseledger/bankfeed/internal/domain/ingestion"
	ingestionhandler "github.com/caseledger/bankfeed/internal/domain/ingestion/handler"
	"github.com/caseledger/bankfeed/pkg/config"
	"github.com/caseledger/bankfeed/pkg/cron"
	"github.com/caseledger/bankfeed/pkg/db"
	"github.com/caseledger/bankfeed/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	AccountRepo        *account.Repository
	TransactionRepo    *ingestion.Repository
	CategorizationRepo *categorization.Repository

	// Services
	CategorizationService *categorization.Service
	IngestionService      *ingestion.Service
	Spool                 *storage.Spool
	Scheduler             *cron.Scheduler

	// Handlers
	IngestionHandler *ingestionhandler.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.AccountRepo = account.NewRepository(d.DB.Pool)
	d.TransactionRepo = ingestion.NewRepository(d.DB.Pool)
	d.CategorizationRepo = categorization.NewRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	d.CategorizationService = categorization.NewService(d.CategorizationRepo, d.Logger)

	if d.Config.ClassifierConfigured() {
		client, err := categorization.NewGeminiClient(
			ctx,
			d.Config.Gemini.APIKey,
			d.Config.Gemini.Model,
			d.Config.Gemini.RequestsPerSecond,
			d.Logger,
		)
		if err != nil {
			return fmt.Errorf("failed to init classifier client: %w", err)
		}
		d.CategorizationService.WithClient(client)
		d.Logger.Info("classifier configured", "model", d.Config.Gemini.Model)
	} else {
		d.Logger.Warn("classifier not configured, using fallback categorization only")
	}

	// Ingestion coordinator with the classifier wired in through an adapter
	d.IngestionService = ingestion.NewService(
		d.AccountRepo,
		d.TransactionRepo,
		newClassifierAdapter(d.CategorizationService),
		d.Logger,
	)

	// Spool directory for uploaded statements
	spool, err := storage.NewSpool(d.Config.Uploads.Dir)
	if err != nil {
		return fmt.Errorf("failed to init upload spool: %w", err)
	}
	d.Spool = spool

	// Background sweep for uploads that escaped inline cleanup
	sweepAge := time.Duration(d.Config.Uploads.SweepAfterHrs) * time.Hour
	d.Scheduler = cron.NewScheduler(d.Spool, sweepAge, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.IngestionHandler = ingestionhandler.NewHandler(d.IngestionService, d.Spool, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
