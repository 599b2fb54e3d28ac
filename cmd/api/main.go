package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/buildmart/storefront/api/controllers"
	"github.com/buildmart/storefront/api/routes"
	"github.com/buildmart/storefront/internal/cart"
	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/checkout"
	"github.com/buildmart/storefront/internal/cron"
	"github.com/buildmart/storefront/internal/document"
	"github.com/buildmart/storefront/internal/order"
	"github.com/buildmart/storefront/internal/state"
	"github.com/buildmart/storefront/pkg/config"
	"github.com/buildmart/storefront/pkg/db"
	"github.com/buildmart/storefront/pkg/events"
	"github.com/buildmart/storefront/pkg/instance"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/mail"
	"github.com/buildmart/storefront/pkg/metrics"
	"github.com/buildmart/storefront/pkg/pubsub"
	"github.com/buildmart/storefront/pkg/redis"
)

const (
	serviceName       = "storefront-api"
	shutdownTimeout   = 15 * time.Second
	retentionLockName = "state-retention"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cat, err := catalog.Default()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	readiness := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		closers = append(closers, redisClient)
		readiness["redis"] = redisClient
	}

	kv, pruner, err := openStateBackend(ctx, cfg, logg, redisClient, &closers, readiness)
	if err != nil {
		return err
	}

	registry, err := state.NewRegistry(state.RegistryParams{
		KV:      kv,
		Logger:  logg,
		Metrics: metrics.NewStateMetrics(reg),
		IdleTTL: cfg.State.IdleTTL,
		Shared:  cfg.State.BackendName() != config.StateBackendMemory,
	})
	if err != nil {
		return fmt.Errorf("build session registry: %w", err)
	}
	readiness["state"] = registry

	emitter, err := buildEmitter(ctx, cfg, logg, &closers, readiness)
	if err != nil {
		return err
	}

	calc := order.Calculator{
		ShippingFee: cfg.Checkout.ShippingFeeAmount(),
		TaxRate:     cfg.Checkout.TaxRateAmount(),
	}

	cartService, err := cart.NewService(cart.ServiceParams{
		Sessions:   registry,
		Catalog:    cat,
		Calculator: calc,
		Events:     emitter,
		Logger:     logg,
	})
	if err != nil {
		return fmt.Errorf("build cart service: %w", err)
	}

	mailer, err := buildMailer(cfg, logg)
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Sessions:       registry,
		Catalog:        cat,
		Calculator:     calc,
		Renderer:       document.NewPDFRenderer(),
		Mailer:         mailer,
		Events:         emitter,
		Metrics:        metrics.NewCheckoutMetrics(reg),
		Logger:         logg,
		OperatorEmail:  cfg.Checkout.OperatorEmail,
		AttachmentName: cfg.Checkout.AttachmentName,
		Currency:       cfg.Checkout.CurrencyLabel,
		Timeout:        cfg.Checkout.SubmitTimeout,
	})
	if err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}

	schedulers, err := buildSchedulers(cfg, logg, metrics.NewJobMetrics(reg), registry, pruner, redisClient)
	if err != nil {
		return err
	}
	for _, scheduler := range schedulers {
		go func() {
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "maintenance scheduler stopped", err)
			}
		}()
	}

	addr := ":" + cfg.App.Port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"state":    cfg.State.BackendName(),
		"mail":     cfg.Checkout.Transport(),
		"products": cat.Len(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:    cfg,
			Logger:    logg,
			Catalog:   cat,
			Cart:      cartService,
			Checkout:  checkoutService,
			Redis:     redisClient,
			Readiness: readiness,
			Gatherer:  reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStateBackend selects the KV mirror. The returned pruner is non-nil
// only for backends without native key expiry.
func openStateBackend(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	closers *[]io.Closer,
	readiness map[string]controllers.Pinger,
) (state.KV, *state.SQLKV, error) {
	switch cfg.State.BackendName() {
	case config.StateBackendRedis:
		kv, err := state.NewRedisKV(redisClient, cfg.State.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("build redis state backend: %w", err)
		}
		return kv, nil, nil
	case config.StateBackendSQL:
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap database: %w", err)
		}
		*closers = append(*closers, dbClient)
		readiness["database"] = dbClient
		kv, err := state.NewSQLKV(ctx, dbClient.DB())
		if err != nil {
			return nil, nil, fmt.Errorf("build sql state backend: %w", err)
		}
		return kv, kv, nil
	default:
		logg.Warn(ctx, "using in-memory state backend; carts are lost on restart")
		return state.NewMemoryKV(), nil, nil
	}
}

func buildEmitter(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	closers *[]io.Closer,
	readiness map[string]controllers.Pinger,
) (events.Emitter, error) {
	logEmitter := events.NewLogEmitter(logg)
	if !cfg.Checkout.PublishOrderEvt {
		return logEmitter, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	*closers = append(*closers, client)
	readiness["pubsub"] = client

	topics := map[events.Type]pubsub.Publisher{
		events.TypeOrderPlaced: client.Publisher(cfg.PubSub.OrdersTopic),
	}
	if cfg.PubSub.CartTopic != "" {
		topics[events.TypeCartItemAdded] = client.Publisher(cfg.PubSub.CartTopic)
	}
	return events.Fanout{logEmitter, events.NewPubSubEmitter(topics)}, nil
}

func buildMailer(cfg *config.Config, logg *logger.Logger) (mail.Dispatcher, error) {
	if cfg.Checkout.Transport() != config.MailTransportSendgrid {
		return mail.NewLogDispatcher(logg), nil
	}
	sg, err := mail.NewSendgridDispatcher(cfg.Sendgrid.APIKey, cfg.Sendgrid.DefaultFrom, cfg.Sendgrid.FromName, logg)
	if err != nil {
		return nil, fmt.Errorf("build sendgrid dispatcher: %w", err)
	}
	return mail.NewBreakerDispatcher(sg, mail.BreakerSettings{
		Name:                "sendgrid",
		MaxRequests:         cfg.Breaker.MaxRequests,
		Interval:            cfg.Breaker.Interval,
		Timeout:             cfg.Breaker.Timeout,
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	}, logg), nil
}

// buildSchedulers returns the per-replica session sweep and, for SQL state,
// a retention pruner that holds the shared lock when Redis is available.
func buildSchedulers(
	cfg *config.Config,
	logg *logger.Logger,
	jobMetrics *metrics.JobMetrics,
	registry *state.Registry,
	pruner *state.SQLKV,
	redisClient *redis.Client,
) ([]*cron.Service, error) {
	sweep, err := cron.NewSessionSweepJob(registry)
	if err != nil {
		return nil, fmt.Errorf("build session sweep job: %w", err)
	}
	local, err := cron.NewService(cron.ServiceParams{
		Name:     "session-sweep",
		Logger:   logg,
		Jobs:     []cron.Job{sweep},
		Metrics:  jobMetrics,
		Interval: cfg.State.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("build session scheduler: %w", err)
	}
	schedulers := []*cron.Service{local}
	if pruner == nil {
		return schedulers, nil
	}

	retention, err := cron.NewStateRetentionJob(cron.StateRetentionJobParams{
		Store:     pruner,
		Retention: cfg.State.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build state retention job: %w", err)
	}
	var lock cron.Lock = &cron.LocalLock{}
	if redisClient != nil {
		lock, err = cron.NewLeaseLock(redisClient, redisClient.LockKey(retentionLockName), cfg.State.SweepInterval)
		if err != nil {
			return nil, fmt.Errorf("build retention lock: %w", err)
		}
	}
	shared, err := cron.NewService(cron.ServiceParams{
		Name:     "state-retention",
		Logger:   logg,
		Jobs:     []cron.Job{retention},
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.State.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("build retention scheduler: %w", err)
	}
	return append(schedulers, shared), nil
}
