package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "evroaming/backend/libs/db"
	libredis "evroaming/backend/libs/redis"
	"evroaming/backend/services/sessions-service/internal/auditlog"
	"evroaming/backend/services/sessions-service/internal/cdr"
	"evroaming/backend/services/sessions-service/internal/config"
	"evroaming/backend/services/sessions-service/internal/directory"
	"evroaming/backend/services/sessions-service/internal/forwarder"
	httpserver "evroaming/backend/services/sessions-service/internal/http"
	"evroaming/backend/services/sessions-service/internal/http/handlers"
	"evroaming/backend/services/sessions-service/internal/http/middleware"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/mqttpub"
	"evroaming/backend/services/sessions-service/internal/password"
	redisstore "evroaming/backend/services/sessions-service/internal/redis"
	"evroaming/backend/services/sessions-service/internal/repository"
	"evroaming/backend/services/sessions-service/internal/service"
	"evroaming/backend/services/sessions-service/internal/stationproxy"
	"evroaming/backend/services/sessions-service/internal/store"
	"evroaming/backend/services/sessions-service/internal/ws"
)

const startupTimeout = 15 * time.Second

// App wires sessions-service dependencies.
type App struct {
	server         *httpserver.Server
	proxy          *stationproxy.Proxy
	sessions       *service.SessionsService
	wsManager      *ws.Manager
	expiryInterval time.Duration

	db          *sql.DB
	redisClient *redis.Client
	fileSink    *auditlog.FileSink
	kafka       *forwarder.KafkaForwarder
	mqtt        *mqttpub.Publisher
	logger      *zap.Logger
}

// New constructs the application graph. Postgres, Redis, Kafka and MQTT are
// optional and only wired when configured.
func New(cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger, expiryInterval: cfg.Reservations.ExpiryInterval}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	registry := directory.NewRegistry()
	if cfg.Directory.File != "" {
		if err := registry.LoadFile(cfg.Directory.File); err != nil {
			return nil, err
		}
		logger.Info("directory loaded", zap.Int("evses", len(registry.EVSEIDs())))
	}

	sinks, err := a.auditSinks(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.wsManager = ws.NewManager(30 * time.Second)
	sinks = append(sinks, a.wsManager)
	sink := auditlog.Multi(sinks...)

	proxyOpts := []stationproxy.Option{
		stationproxy.WithAuditSink(sink),
		stationproxy.WithLogger(logger.Named("stationproxy")),
		stationproxy.WithDirectory(registry),
		stationproxy.WithStatusApplier(registry),
	}
	if cfg.MQTT.Broker != "" {
		a.mqtt, err = mqttpub.NewPublisher(mqttpub.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger.Named("mqtt"))
		if err != nil {
			return nil, err
		}
		proxyOpts = append(proxyOpts, stationproxy.WithStatusPublisher(a.mqtt))
	}

	a.proxy, err = stationproxy.New(stationproxy.Config{
		BaseURL:            cfg.Station.BaseURL,
		Login:              cfg.Station.Login,
		Password:           cfg.Station.Password,
		AuthListID:         cfg.Station.AuthListID,
		SystemID:           models.SystemID(cfg.Station.SystemID),
		ReserveTimeout:     cfg.Station.ReserveTimeout,
		CancelTimeout:      cfg.Station.CancelTimeout,
		RemoteStartTimeout: cfg.Station.RemoteStartTimeout,
		RemoteStopTimeout:  cfg.Station.RemoteStopTimeout,
		StatusTimeout:      cfg.Station.StatusTimeout,
		StatusInterval:     cfg.Station.StatusInterval,
		WhitelistTimeout:   cfg.Station.WhitelistTimeout,
	}, proxyOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.Station.AuthListID != "" {
		if err := a.proxy.LoadWhitelist(ctx); err != nil {
			logger.Warn("initial whitelist load failed", zap.Error(err))
		}
	}

	deps := service.Deps{
		Proxy:     a.proxy,
		Directory: registry,
		Sessions:  store.NewSessionsStore(sink, logger.Named("sessions")),
		CDRs:      store.NewCDRStore(sink, logger.Named("cdrs")),
		SystemID:  models.SystemID(cfg.Station.SystemID),
		Logger:    logger.Named("service"),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka, err = forwarder.NewKafkaForwarder(forwarder.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		deps.Forwarder = a.kafka
	}
	if cfg.CDR.SigningSecret != "" {
		deps.Signer, err = cdr.NewSigner(cfg.CDR.SigningSecret, cfg.CDR.KeyID)
		if err != nil {
			return nil, err
		}
	}
	a.sessions = service.NewSessionsService(deps)

	accounts, err := cfg.ServiceAccounts()
	if err != nil {
		return nil, err
	}
	routes := httpserver.Routes{
		Reservations: handlers.NewReservationsHandler(a.sessions, logger),
		Sessions:     handlers.NewSessionsHandler(a.sessions, logger),
		Whitelist:    handlers.NewWhitelistHandler(a.sessions),
		Health:       handlers.NewHealthHandler(),
		AuditStream:  ws.NewServer(a.wsManager, 10*time.Second, logger.Named("ws")).HandleWS,
		Auth: middleware.Auth(middleware.AuthConfig{
			Secret:   cfg.Auth.JWTSecret,
			Accounts: accounts,
			Hasher:   password.NewBcryptHasher(0),
			Logger:   logger,
		}),
	}

	router := httpserver.NewRouter(routes)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)
	return a, nil
}

// auditSinks opens the configured persistent audit sinks.
func (a *App) auditSinks(ctx context.Context, cfg *config.Config) ([]auditlog.Sink, error) {
	var sinks []auditlog.Sink

	if cfg.Audit.File != "" {
		fileSink, err := auditlog.NewFileSink(cfg.Audit.File)
		if err != nil {
			return nil, err
		}
		a.fileSink = fileSink
		sinks = append(sinks, fileSink)
	}

	if cfg.Database.DSN != "" {
		sqlDB, err := libdb.NewPostgresDB(ctx, cfg.Database.DSN, libdb.PoolOptions{})
		if err != nil {
			return nil, err
		}
		a.db = sqlDB
		repo := repository.NewAuditLogRepository(sqlDB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, repo)
	}

	if cfg.Redis.Addr != "" {
		client, err := libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		sinks = append(sinks, redisstore.NewStore(client, cfg.ActiveSessionTTL()))
	}
	return sinks, nil
}

// Run serves HTTP and runs the background loops until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.proxy.RunStatusImporter(ctx)
	}()
	go func() {
		defer wg.Done()
		a.wsManager.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		a.expireReservations(ctx)
	}()

	err := a.server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func (a *App) expireReservations(ctx context.Context) {
	interval := a.expiryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.ExpireReservations(ctx); n > 0 {
				a.logger.Info("reservations expired", zap.Int("count", n))
			}
		}
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.fileSink != nil {
		if err := a.fileSink.Close(); err != nil {
			a.logger.Warn("failed to flush audit file", zap.Error(err))
		}
	}
}
