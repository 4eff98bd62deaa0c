package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toolrent-backend/internal/config"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository"
	"toolrent-backend/internal/repository/memory"
	"toolrent-backend/internal/repository/postgres"
	"toolrent-backend/internal/security"
	"toolrent-backend/internal/service"

	_ "github.com/lib/pq"
)

// App holds the wired booking backend shared by the server and the cronjob
// runner.
type App struct {
	Config *config.Config
	// DB is nil when running on the in-memory store.
	DB    *sql.DB
	Repos repository.Repositories
	Tx    repository.Transactor

	Availability service.AvailabilityService
	Reservations service.ReservationService
	Loans        service.LoanService
	Email        service.EmailService
	Tokens       security.TokenManager
	Clock        service.Clock
}

// New opens the configured store and builds every service on top of it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		Clock:  service.SystemClock(),
		Tokens: security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute),
		Email:  NewEmailService(cfg),
	}

	var seed *Seed
	if cfg.Store.SeedFile != "" {
		var err error
		if seed, err = LoadSeed(cfg.Store.SeedFile); err != nil {
			return nil, err
		}
	}

	switch cfg.Store.Type {
	case config.StoreTypeMemory:
		logger.Info("Using in-memory store")
		store := memory.NewStore()
		if seed != nil {
			seed.ApplyMemory(store)
		}
		a.Repos, a.Tx = store.Repositories(), store
	default:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if seed != nil {
			if err := postgres.SeedCatalog(ctx, db, seed.Members, seed.Tools); err != nil {
				db.Close()
				return nil, err
			}
		}
		store := postgres.NewStore(db, cfg.Database.LockRetries)
		a.DB, a.Repos, a.Tx = db, store.Repositories(), store
	}

	policy := BookingPolicy(cfg)
	a.Availability = service.NewAvailabilityService(a.Repos)
	a.Reservations = service.NewReservationService(a.Repos, a.Tx, a.Clock, service.RandomIDs(), policy)
	a.Loans = service.NewLoanService(a.Repos, a.Tx, a.Clock, service.RandomIDs(), policy)
	return a, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database schema ensured")
	}
	return db, nil
}

// Ping reports whether the backing store is reachable.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func BookingPolicy(cfg *config.Config) service.BookingPolicy {
	return service.BookingPolicy{
		LateFeePerDay: cfg.LateFeePerDay(),
		MaxBatchSize:  cfg.Booking.MaxBatchSize,
		StartGrace:    cfg.StartGrace(),
		ReturnGrace:   cfg.ReturnGrace(),
	}
}

// NewEmailService prefers SendGrid, then SMTP, and falls back to logging.
func NewEmailService(cfg *config.Config) service.EmailService {
	switch {
	case cfg.SendGrid.APIKey != "":
		logger.Info("Using SendGrid email delivery", "from", cfg.SendGrid.FromEmail)
		return service.NewSendGridEmailService(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
	case cfg.SMTP.Host != "":
		logger.Info("Using SMTP email delivery", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
		return service.NewEmailService(cfg.SMTP.Host, fmt.Sprintf("%d", cfg.SMTP.Port), cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	default:
		logger.Warn("No email transport configured, reminders will only be logged")
		return service.NewLogEmailService()
	}
}
