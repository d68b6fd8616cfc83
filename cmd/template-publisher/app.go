// cmd/template-publisher/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"template-publisher/internal/api"
	"template-publisher/internal/common/airtable"
	"template-publisher/internal/common/audit"
	"template-publisher/internal/common/camunda"
	"template-publisher/internal/common/config"
	"template-publisher/internal/common/database"
	"template-publisher/internal/common/layer"
	"template-publisher/internal/common/lease"
	"template-publisher/internal/common/logger"
	"template-publisher/internal/common/notify"
	"template-publisher/internal/common/observability"
	templatepublish "template-publisher/internal/workers/layer/template-publish"
)

// app holds everything one process needs and closes it in reverse order.
type app struct {
	cfg     *config.Config
	zapLog  *zap.Logger
	log     logger.Logger
	handler *templatepublish.Handler
	checks  map[string]api.HealthCheck
	closers []func()
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// newApp wires clients, optional sinks and the handler. Optional
// dependencies are connected only when enabled in config.
func newApp(ctx context.Context, withCamunda bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if singleRecord {
		cfg.Publisher.SingleRecord = true
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog)

	a := &app{
		cfg:    cfg,
		zapLog: zapLog,
		log:    log,
		checks: map[string]api.HealthCheck{},
	}
	a.closers = append(a.closers, func() { _ = zapLog.Sync() })

	if err := a.wire(ctx, withCamunda); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, withCamunda bool) error {
	cfg := a.cfg

	records := airtable.NewClient(cfg.Airtable.BaseURL, cfg.Airtable.APIKey, cfg.Airtable.BaseID, cfg.Airtable.Table,
		config.GetDuration(cfg.Airtable.Timeout))
	projects := layer.NewClient(cfg.Layer.BaseURL, cfg.Layer.APIKey, config.GetDuration(cfg.Layer.Timeout))

	deps := templatepublish.ServiceDependencies{
		Logger:   a.log,
		Records:  records,
		Projects: projects,
	}

	obs := observability.New(cfg.App.Name, a.log)
	a.closers = append(a.closers, obs.Shutdown)
	deps.Observability = obs

	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 5, time.Second, a.zapLog, "PostgreSQL connection")
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = pg.Close() })
		a.checks["postgres"] = pg.Ping

		sink := audit.NewPostgresSink(pg.DB)
		if err := sink.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare publish audit table: %w", err)
		}
		deps.Publishes = sink
		a.zapLog.Info("PostgreSQL connected successfully")
	}

	if cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err := retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 5, time.Second, a.zapLog, "Elasticsearch connection")
		if err != nil {
			return err
		}
		a.checks["elasticsearch"] = es.Ping
		deps.Validations = audit.NewElasticsearchSink(es.Client, cfg.Database.Elasticsearch.Index)
		a.zapLog.Info("Elasticsearch connected successfully")
	}

	var rdb lease.RedisClient
	if cfg.Publisher.Lease == config.LeaseRedis {
		var redisClient *database.RedisClient
		err := retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 5, time.Second, a.zapLog, "Redis connection")
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		a.checks["redis"] = redisClient.Ping
		rdb = redisClient.Client
		a.zapLog.Info("Redis connected successfully")
	}

	leases, err := lease.New(cfg.Publisher, records, rdb)
	if err != nil {
		return err
	}
	deps.Lease = leases

	notifier, err := notify.New(ctx, cfg.Notifications, a.log)
	if err != nil {
		return err
	}
	if notifier != nil {
		deps.Notifier = notifier
	}

	var camundaClient *camunda.Client
	if withCamunda && cfg.Camunda.Enabled {
		err := retryWithBackoff(func() error {
			var err error
			camundaClient, err = camunda.NewClient(cfg.Camunda.BrokerAddress)
			return err
		}, 10, 2*time.Second, a.zapLog, "Zeebe client initialization")
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = camundaClient.Close() })
		a.checks["zeebe"] = camundaClient.HealthCheck
		a.zapLog.Info("Zeebe client connected successfully")
	}

	handler, err := templatepublish.NewHandler(templatepublish.HandlerOptions{
		AppConfig:    cfg,
		Camunda:      camundaClient,
		Logger:       a.log,
		Dependencies: deps,
	})
	if err != nil {
		return err
	}
	a.handler = handler
	a.closers = append(a.closers, handler.Close)
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
