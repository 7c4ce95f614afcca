// Package app assembles the repositories, services and background workers of the API.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/repository"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/cache"
	"github.com/noah-isme/tutorhub-api/pkg/changefeed"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/database"
	"github.com/noah-isme/tutorhub-api/pkg/events"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/mailer"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

// Repositories groups the sqlx-backed stores.
type Repositories struct {
	Users         *repository.UserRepository
	Profiles      *repository.ProfileRepository
	Availability  *repository.AvailabilityRepository
	Appointments  *repository.AppointmentRepository
	Evaluations   *repository.EvaluationRepository
	Notifications *repository.NotificationRepository
	Announcements *repository.AnnouncementRepository
	Events        *repository.EventRepository
	Analytics     *repository.AnalyticsRepository
	Reports       *repository.ReportRepository
	Cache         *repository.CacheRepository
}

// Services groups the domain services.
type Services struct {
	Auth          *service.AuthService
	Users         *service.UserService
	Profiles      *service.ProfileService
	Availability  *service.AvailabilityService
	Appointments  *service.AppointmentService
	Evaluations   *service.EvaluationService
	Notifications *service.NotificationService
	Announcements *service.AnnouncementService
	Events        *service.EventService
	Analytics     *service.AnalyticsService
	Reports       *service.ReportService
	Expiry        *service.ExpiryService
	Metrics       *service.MetricsService
	Cache         *service.CacheService
}

// App owns every long-lived dependency of the process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Bus      *events.Bus
	Feed     changefeed.Feed
	Objects  storage.ObjectStore
	Uploads  *storage.LocalStorage
	Exports  *storage.LocalStorage
	Repos    Repositories
	Services Services

	notifyQueue    *jobs.Queue
	reportQueue    *jobs.Queue
	cancel         context.CancelFunc
	inlineDelivery bool
}

// Option adjusts how New assembles the App.
type Option func(*App)

// InlineNotifications delivers notifications on the calling goroutine instead of the worker queue.
// Short-lived commands use it so nothing is left in an unstarted queue.
func InlineNotifications() Option {
	return func(a *App) { a.inlineDelivery = true }
}

// New connects to Postgres (and Redis when enabled) and builds the service graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: db, Bus: events.NewBus(logger)}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			a.Redis = client
		}
	}
	if a.Redis != nil {
		a.Feed = changefeed.NewRedisFeed(a.Redis, logger)
	} else {
		a.Feed = changefeed.NewMemoryFeed()
	}

	if err := a.buildStorage(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := a.buildExportStorage(); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.buildRepositories()
	a.buildServices()
	return a, nil
}

func (a *App) buildStorage() error {
	cfg := a.Config.Storage
	if cfg.CloudinaryURL != "" {
		store, err := storage.NewCloudinaryStore(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			return fmt.Errorf("init cloudinary: %w", err)
		}
		a.Objects = store
		return nil
	}
	dir := cfg.LocalDir
	if dir == "" {
		dir = "./uploads"
	}
	files, err := storage.NewLocalStorage(dir)
	if err != nil {
		return fmt.Errorf("init upload dir: %w", err)
	}
	a.Uploads = files
	a.Objects = storage.NewDiskObjectStore(files, cfg.PublicBaseURL)
	return nil
}

func (a *App) buildExportStorage() error {
	dir := a.Config.Reports.StorageDir
	if dir == "" {
		dir = "./storage/reports"
	}
	files, err := storage.NewLocalStorage(dir)
	if err != nil {
		return fmt.Errorf("init report dir: %w", err)
	}
	a.Exports = files
	return nil
}

func (a *App) buildRepositories() {
	a.Repos = Repositories{
		Users:         repository.NewUserRepository(a.DB),
		Profiles:      repository.NewProfileRepository(a.DB),
		Availability:  repository.NewAvailabilityRepository(a.DB),
		Appointments:  repository.NewAppointmentRepository(a.DB),
		Evaluations:   repository.NewEvaluationRepository(a.DB),
		Notifications: repository.NewNotificationRepository(a.DB),
		Announcements: repository.NewAnnouncementRepository(a.DB),
		Events:        repository.NewEventRepository(a.DB),
		Analytics:     repository.NewAnalyticsRepository(a.DB),
		Reports:       repository.NewReportRepository(a.DB),
		// Without Redis the cache always misses and ending-soon claims stay in process.
		Cache: repository.NewCacheRepository(a.Redis, a.Logger),
	}
}

func (a *App) buildServices() {
	cfg := a.Config
	logger := a.Logger
	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if a.Redis != nil {
		cacheRepo = a.Repos.Cache
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CacheTTL, logger, cfg.Analytics.Enabled)

	notifications := service.NewNotificationService(a.Repos.Notifications, a.Repos.Users, mailer.New(cfg.Notifications, logger), a.Feed, logger)
	a.notifyQueue = jobs.NewQueue("notifications", notifications.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logger,
	})
	if !a.inlineDelivery {
		notifications.UseQueue(a.notifyQueue)
	}

	auth := service.NewAuthService(a.Repos.Users, validate, logger, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "tutorhub-api",
	})

	policy := service.NewSessionPolicy(cfg.Sessions)
	appointments := service.NewAppointmentService(service.AppointmentDeps{
		Repo:         a.Repos.Appointments,
		Availability: a.Repos.Availability,
		Users:        a.Repos.Users,
		Notifier:     notifications,
		Events:       a.Bus,
		Metrics:      metrics,
		Audit:        a.Repos.Users,
		Validator:    validate,
		Policy:       policy,
		Logger:       logger,
	})

	analytics := service.NewAnalyticsService(a.Repos.Analytics, cacheSvc, metrics, logger)

	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(a.Repos.Appointments, a.Repos.Analytics, a.Exports, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logger)
	worker := service.NewReportWorker(a.Repos.Reports, exporter, cfg.Reports.WorkerRetries, logger)
	a.reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logger,
	})

	a.Services = Services{
		Auth:          auth,
		Users:         service.NewUserService(a.Repos.Users, a.Bus, validate, logger),
		Profiles:      service.NewProfileService(a.Repos.Profiles, a.Objects, cfg.Storage.MaxUploadBytes, a.Bus, validate, logger),
		Availability:  service.NewAvailabilityService(a.Repos.Availability, a.Bus, validate, logger),
		Appointments:  appointments,
		Evaluations:   service.NewEvaluationService(a.Repos.Evaluations, appointments, a.Bus, metrics, validate, logger),
		Notifications: notifications,
		Announcements: service.NewAnnouncementService(a.Repos.Announcements, a.Bus, validate, logger),
		Events:        service.NewEventService(a.Repos.Events, a.Objects, cfg.Storage.MaxUploadBytes, a.Bus, validate, logger),
		Analytics:     analytics,
		Reports: service.NewReportService(a.Repos.Reports, a.reportQueue, exporter, logger, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		}),
		Expiry:  service.NewExpiryService(appointments, a.Repos.Cache, notifications, metrics, policy, cfg.Sessions.SweepSchedule, logger),
		Metrics: metrics,
		Cache:   cacheSvc,
	}

	service.RegisterSubscribers(a.Bus, service.SubscriberDeps{
		Feed:      a.Feed,
		Analytics: analytics,
		Sessions:  auth,
		Logger:    logger,
	})
}

// Start launches the queues, the expiry sweep and report cleanup.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.notifyQueue.Start(ctx)
	if a.Config.Reports.Enabled {
		a.reportQueue.Start(ctx)
		a.Services.Reports.RecoverPendingJobs(ctx)
		a.Services.Reports.StartCleanup(ctx)
	}
	if a.Config.Sessions.SweepEnabled {
		if err := a.Services.Expiry.Start(); err != nil {
			return fmt.Errorf("start expiry sweep: %w", err)
		}
	}
	return nil
}

// Close stops background work and releases connections.
func (a *App) Close(ctx context.Context) {
	if a.Services.Expiry != nil {
		a.Services.Expiry.Stop(ctx)
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.reportQueue != nil {
		a.reportQueue.Stop()
	}
	if a.notifyQueue != nil {
		a.notifyQueue.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("close postgres", zap.Error(err))
	}
}
