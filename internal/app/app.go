package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mentorsync/internal/api/http/handler"
	"mentorsync/internal/api/http/route"
	"mentorsync/internal/apperrors"
	"mentorsync/internal/config"
	"mentorsync/internal/crm"
	"mentorsync/internal/msg/events"
	"mentorsync/internal/msg/outbox"
	"mentorsync/internal/repository"
	"mentorsync/internal/service"
	"mentorsync/pkg/kafka"
	"mentorsync/pkg/postgres"
	"mentorsync/pkg/redis"
	"mentorsync/pkg/server"
)

type HealthHandler interface {
	Ping(c *gin.Context)
	Health(c *gin.Context)
}

type SyncHandler interface {
	Dispatch(c *gin.Context)
	ListOutbox(c *gin.Context)
	ReplayOutboxItem(c *gin.Context)
}

type WebhookHandler interface {
	Receive(c *gin.Context)
}

type MentorHandler interface {
	UpdateMentor(c *gin.Context)
	SyncStatus(c *gin.Context)
}

type Poller interface {
	Run(ctx context.Context)
}

type App struct {
	Cfg        *config.Config
	Log        *zap.Logger
	Handler    *Handler
	Service    *Service
	DB         postgres.Postgres
	RDB        redis.Redis
	Producer   kafka.Producer
	HTTPServer server.HTTPServer
	Poller     Poller
}

type Repository struct {
	Transactor             *repository.Transactor
	HealthRepository       *repository.HealthRepository
	MentorRepository       *repository.MentorRepository
	OutboxRepository       *repository.OutboxRepository
	SyncMetadataRepository *repository.SyncMetadataRepository
	AnalyticsRepository    *repository.AnalyticsRepository
}

type Service struct {
	HealthService  *service.HealthService
	SyncService    *service.SyncService
	Dispatcher     *service.Dispatcher
	WebhookService *service.WebhookService
	ProfileService *service.ProfileService
}

type Handler struct {
	HealthHandler  HealthHandler
	SyncHandler    SyncHandler
	WebhookHandler WebhookHandler
	MentorHandler  MentorHandler
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	crmClient, err := crm.New(crm.Config{
		BaseURL:            cfg.CRM.BaseURL,
		BaseID:             cfg.CRM.BaseID,
		APIToken:           cfg.CRM.APIToken,
		MinRequestInterval: cfg.CRM.MinRequestInterval,
		BatchSize:          cfg.CRM.BatchSize,
		RequestTimeout:     cfg.CRM.RequestTimeout,
	})
	if err != nil {
		log.Error("Failed to initialize crm client", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize crm client: %w", err)
	}

	db, err := initDB(&cfg.Database)
	if err != nil {
		log.Error("Failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var (
		rdb   redis.Redis
		guard service.ReplayGuard = service.NopReplayGuard{}
	)

	if cfg.Redis.Enable {
		rdb, err = initRedis(&cfg.Redis)
		if err != nil {
			db.Close()
			log.Error("Failed to initialize redis", zap.Error(err))
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}

		guard = service.NewRedisReplayGuard(rdb.RDB())
		log.Debug("Webhook replay guard uses redis")
	}

	var (
		producer  kafka.Producer
		publisher service.EventPublisher = events.Nop{}
	)

	if cfg.Kafka.Enable {
		producer, err = kafka.NewProducer(
			cfg.Kafka.Brokers,
			kafka.WithBalancer(kafka.Hash),
			kafka.WithRequiredAcks(kafka.WaitForLocal),
		)
		if err != nil {
			db.Close()
			log.Error("Failed to initialize kafka producer", zap.Error(err))
			return nil, fmt.Errorf("failed to init kafka producer: %w", err)
		}

		publisher = events.NewPublisher(log, producer, cfg.Kafka.Producer.Topic)
		log.Debug("Sync events are published to kafka", zap.String("topic", cfg.Kafka.Producer.Topic))
	}

	repo := initRepository(log, db)

	optional := make(map[string]service.Pinger)
	if rdb != nil {
		optional["redis"] = rdb
	}

	svc := initService(log, cfg, repo, crmClient, guard, publisher, optional)

	hdl := initHandler(log, cfg, svc)

	httpServer := initHTTPServer(log, cfg, hdl)

	var poller Poller
	if cfg.Sync.PollInterval > 0 {
		poller = outbox.NewPoller(log, outbox.Config{
			Name:         cfg.App.ServiceName,
			WorkerCount:  cfg.Sync.WorkerCount,
			PollInterval: cfg.Sync.PollInterval,
			BatchSize:    cfg.Sync.BatchSize,
		}, svc.Dispatcher)
	}

	return &App{
		Cfg:        cfg,
		Log:        log,
		Handler:    hdl,
		Service:    svc,
		DB:         db,
		RDB:        rdb,
		Producer:   producer,
		HTTPServer: httpServer,
		Poller:     poller,
	}, nil
}

func MustNew(cfg *config.Config, log *zap.Logger) *App {
	app, err := New(cfg, log)
	if err != nil {
		panic(err)
	}

	return app
}

// Run blocks until the HTTP server stops or ctx is done.
func (a *App) Run(ctx context.Context) error {
	errs := make(chan error, 1)

	go func() {
		errs <- a.HTTPServer.Run()
	}()

	if a.Poller != nil {
		go a.Poller.Run(ctx)
	}

	a.Log.Info("Application started",
		zap.String("service", a.Cfg.App.ServiceName),
		zap.String("env", a.Cfg.App.Env),
		zap.Bool("poller", a.Poller != nil),
	)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (a *App) Shutdown() error {
	var errs []error

	if err := a.HTTPServer.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown http server: %w", err))
	}

	a.Log.Debug("Http server shutdown")

	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka producer: %w", err))
		}

		a.Log.Debug("Kafka producer closed")
	}

	if a.RDB != nil {
		if err := a.RDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close RDB: %w", err))
		}

		a.Log.Debug("Redis closed")
	}

	a.DB.Close()
	a.Log.Debug("Database closed")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrShutdown, errors.Join(errs...))
	}

	return nil
}

func initDB(cfg *config.Database) (postgres.Postgres, error) {
	postgresCfg := &postgres.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Name:     cfg.Name,
		SSLMode:  cfg.SSLMode,
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
		Migration: postgres.Migration{
			Path:      cfg.Migration.Path,
			AutoApply: cfg.Migration.AutoApply,
		},
	}

	db, err := postgres.New(postgresCfg)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func initRedis(cfg *config.Redis) (redis.Redis, error) {
	redisCfg := &redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	rdb, err := redis.New(redisCfg)
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func initRepository(log *zap.Logger, db postgres.Postgres) *Repository {
	tx := repository.NewTransactor(db.Pool())

	healthRepo := repository.NewHealthRepository(db.Pool())
	log.Debug("Health repository initialized")

	mentorRepo := repository.NewMentorRepository(db.Pool())
	log.Debug("Mentor repository initialized")

	outboxRepo := repository.NewOutboxRepository(db.Pool())
	log.Debug("Outbox repository initialized")

	metadataRepo := repository.NewSyncMetadataRepository(db.Pool())
	log.Debug("Sync metadata repository initialized")

	analyticsRepo := repository.NewAnalyticsRepository(db.Pool())
	log.Debug("Analytics repository initialized")

	return &Repository{
		Transactor:             tx,
		HealthRepository:       healthRepo,
		MentorRepository:       mentorRepo,
		OutboxRepository:       outboxRepo,
		SyncMetadataRepository: metadataRepo,
		AnalyticsRepository:    analyticsRepo,
	}
}

func initService(
	log *zap.Logger,
	cfg *config.Config,
	repo *Repository,
	crmClient *crm.Client,
	guard service.ReplayGuard,
	publisher service.EventPublisher,
	optional map[string]service.Pinger,
) *Service {
	healthSvc := service.NewHealthService(log, repo.HealthRepository, repo.OutboxRepository, optional)
	log.Debug("Health service initialized")

	syncSvc := service.NewSyncService(
		log,
		repo.Transactor,
		repo.MentorRepository,
		repo.SyncMetadataRepository,
		repo.AnalyticsRepository,
		crmClient,
		publisher,
		cfg.CRM.TableID,
	)
	log.Debug("Sync service initialized")

	dispatcher := service.NewDispatcher(log, repo.OutboxRepository, syncSvc, service.DispatcherConfig{
		BatchSize:       cfg.Sync.BatchSize,
		MaxBatchSize:    cfg.Sync.MaxBatchSize,
		ProcessingStale: cfg.Sync.ProcessingStale,
	})
	log.Debug("Dispatcher initialized")

	webhookSvc := service.NewWebhookService(
		log,
		repo.Transactor,
		repo.MentorRepository,
		repo.SyncMetadataRepository,
		guard,
		publisher,
		service.WebhookConfig{
			Secret:     cfg.CRM.WebhookSecret,
			TableID:    cfg.CRM.TableID,
			ReplayTTL:  cfg.Redis.ReplayTTL,
			ClaimLease: cfg.Redis.ReplayLease,
		},
	)
	log.Debug("Webhook service initialized")

	profileSvc := service.NewProfileService(log, repo.Transactor, repo.MentorRepository, repo.OutboxRepository, syncSvc)
	log.Debug("Profile service initialized")

	return &Service{
		HealthService:  healthSvc,
		SyncService:    syncSvc,
		Dispatcher:     dispatcher,
		WebhookService: webhookSvc,
		ProfileService: profileSvc,
	}
}

func initHandler(log *zap.Logger, cfg *config.Config, svc *Service) *Handler {
	healthHandler := handler.NewHealthHandler(log, svc.HealthService)
	log.Debug("Health handler initialized")

	syncHandler := handler.NewSyncHandler(log, svc.Dispatcher)
	log.Debug("Sync handler initialized")

	webhookHandler := handler.NewWebhookHandler(log, svc.WebhookService, cfg.CRM.SignatureHeader, cfg.HTTPServer.MaxWebhookBody)
	log.Debug("Webhook handler initialized")

	mentorHandler := handler.NewMentorHandler(log, svc.ProfileService, svc.SyncService)
	log.Debug("Mentor handler initialized")

	return &Handler{
		HealthHandler:  healthHandler,
		SyncHandler:    syncHandler,
		WebhookHandler: webhookHandler,
		MentorHandler:  mentorHandler,
	}
}

func initHTTPServer(log *zap.Logger, cfg *config.Config, hdl *Handler) server.HTTPServer {
	router := route.SetupRouter(
		log,
		cfg,
		hdl.HealthHandler,
		hdl.SyncHandler,
		hdl.WebhookHandler,
		hdl.MentorHandler,
	)

	httpServer := server.NewHTTPServer(
		server.WithAddr(cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		server.WithTimeout(cfg.HTTPServer.Timeout.Read, cfg.HTTPServer.Timeout.Write, cfg.HTTPServer.Timeout.Idle),
		server.WithHandler(router),
	)

	log.Debug("Http server initialized", zap.Uint16("port", cfg.HTTPServer.Port))

	return httpServer
}
