package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
	"github.com/noah-isme/campus-registrar-api/internal/service"
	"github.com/noah-isme/campus-registrar-api/pkg/cache"
	"github.com/noah-isme/campus-registrar-api/pkg/config"
	"github.com/noah-isme/campus-registrar-api/pkg/database"
	"github.com/noah-isme/campus-registrar-api/pkg/events"
	"github.com/noah-isme/campus-registrar-api/pkg/export"
)

// App holds the wired registration core shared by the HTTP server and the
// admin CLI.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB
	Redis *redis.Client
	Store repository.SectionStore

	Metrics     *service.MetricsService
	Enrollments *service.EnrollmentService
	Overrides   *service.OverrideService
	Gateway     *service.RegistrationGateway
	Audit       *service.AuditService
	Tokens      *service.TokenService
	Validate    *validator.Validate

	dispatcher *events.Dispatcher
	closers    []func() error
}

// New connects the configured backends and builds every service. Redis and
// the broker are optional: failures there degrade to no cache and logged
// events rather than aborting start-up.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  service.NewMetricsService(),
		Tokens:   service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Expiration: cfg.JWT.Expiration}),
		Validate: validator.New(),
	}

	var (
		auditRepo   service.AuditRepository
		maintenance *repository.ConfigurationRepository
		eligibility *repository.EligibilityRepository
	)
	switch cfg.Registration.Store {
	case config.StoreMemory:
		mem := repository.NewMemorySectionStore(cfg.Registration.LockTimeout)
		if err := SeedSections(mem, cfg.Registration.SeedSections); err != nil {
			return nil, err
		}
		a.Store = mem
		auditRepo = mem
		logger.Warn("using in-memory section store; state is lost on restart")
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		a.Store = repository.NewPostgresSectionStore(db, cfg.Registration.LockTimeout)
		auditRepo = repository.NewAuditRepository(db)
		maintenance = repository.NewConfigurationRepository(db)
		eligibility = repository.NewEligibilityRepository(db)
	}

	cacheEnabled := cfg.Cache.Enabled
	if cacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("section state cache disabled", zap.Error(err))
			cacheEnabled = false
		} else {
			a.Redis = client
			a.closers = append(a.closers, client.Close)
		}
	}
	stateCache := service.NewSectionStateCache(repository.NewCacheRepository(a.Redis), a.Metrics, cfg.Cache.SectionStateTTL, logger, cacheEnabled)

	a.dispatcher = events.NewDispatcher(a.eventSink(), events.DispatcherConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logger,
		OnDelivery: a.Metrics.RecordEventPublished,
	})

	opts := service.RegistrarOptions{
		Cache:        stateCache,
		Events:       a.dispatcher,
		Metrics:      a.Metrics,
		Logger:       logger,
		MaxRetries:   cfg.Registration.MaxRetries,
		RetryBackoff: cfg.Registration.RetryBackoff,
	}
	a.Enrollments = service.NewEnrollmentService(a.Store, opts)
	a.Overrides = service.NewOverrideService(a.Store, opts)
	a.Audit = service.NewAuditService(auditRepo, export.NewRenderer(), logger)
	a.Gateway = newGateway(a, maintenance, eligibility)
	return a, nil
}

// newGateway keeps typed-nil repositories out of the gateway's interfaces.
func newGateway(a *App, maintenance *repository.ConfigurationRepository, eligibility *repository.EligibilityRepository) *service.RegistrationGateway {
	cfg := service.GatewayConfig{MaintenanceMode: a.Config.Registration.MaintenanceMode}
	if maintenance == nil || eligibility == nil {
		return service.NewRegistrationGateway(a.Enrollments, a.Overrides, nil, nil, nil, nil, a.Validate, a.Logger, cfg)
	}
	return service.NewRegistrationGateway(a.Enrollments, a.Overrides, maintenance, maintenance, eligibility, eligibility, a.Validate, a.Logger, cfg)
}

func (a *App) eventSink() events.Sink {
	if !a.Config.Events.Enabled {
		return events.SinkFunc(func(ctx context.Context, event events.Event) error {
			a.Logger.Debug("enrollment event",
				zap.String("type", string(event.Type)),
				zap.String("section_id", event.SectionID),
				zap.String("student_id", event.StudentID))
			return nil
		})
	}
	publisher := events.NewAMQPPublisher(a.Config.Events.AMQPURL, a.Config.Events.Queue, a.Logger)
	a.closers = append(a.closers, publisher.Close)
	return publisher
}

// Start launches background workers. Stop them with Close.
func (a *App) Start(ctx context.Context) {
	a.dispatcher.Start(ctx)
}

// Close stops the event workers and releases connections in reverse order.
func (a *App) Close() error {
	a.dispatcher.Stop()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping reports whether the database answers. The memory store is always up.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

// SeedSections loads "id=course:capacity" items into the memory store.
func SeedSections(store *repository.MemorySectionStore, items []string) error {
	for _, item := range items {
		id, rest, ok := strings.Cut(item, "=")
		course, rawCapacity, ok2 := strings.Cut(rest, ":")
		if !ok || !ok2 || id == "" || course == "" {
			return fmt.Errorf("seed section %q: want id=course:capacity", item)
		}
		capacity, err := strconv.Atoi(rawCapacity)
		if err != nil || capacity <= 0 {
			return fmt.Errorf("seed section %q: capacity must be a positive integer", item)
		}
		if err := store.PutSection(models.Section{ID: id, CourseID: course, Capacity: capacity}); err != nil {
			return err
		}
	}
	return nil
}
