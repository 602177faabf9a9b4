// Package app initializes and holds long-lived services for one command
// invocation, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/clock/system"
	"github.com/JakeFAU/fipibank-harvester/internal/config"
	collyfetcher "github.com/JakeFAU/fipibank-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/fipibank-harvester/internal/harvest"
	"github.com/JakeFAU/fipibank-harvester/internal/id/uuid"
	"github.com/JakeFAU/fipibank-harvester/internal/metrics"
	"github.com/JakeFAU/fipibank-harvester/internal/policy/pacing"
	"github.com/JakeFAU/fipibank-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/fipibank-harvester/internal/storage/postgres"
	"github.com/JakeFAU/fipibank-harvester/internal/storage/sqlite"
)

// ClosablePublisher is a publisher that owns a connection.
type ClosablePublisher interface {
	bank.Publisher
	Close() error
}

// App holds the services shared by the commands.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     bank.Store
	publisher ClosablePublisher
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	dialPublisher func(ctx context.Context, projectID, topic string) (ClosablePublisher, error)
}

// WithPublisherDialer replaces the Pub/Sub dialer, mainly for tests.
func WithPublisherDialer(dial func(ctx context.Context, projectID, topic string) (ClosablePublisher, error)) Option {
	return func(o *options) { o.dialPublisher = dial }
}

// New opens the configured store and, when a topic is configured, the
// Pub/Sub publisher. It fails fast if either cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{
		dialPublisher: func(ctx context.Context, projectID, topic string) (ClosablePublisher, error) {
			return pubsub.Dial(ctx, projectID, topic)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	store, err := openStore(ctx, cfg.DB, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, store: store}

	if cfg.PubSub.TopicName != "" {
		pub, err := o.dialPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		logger.Info("batch notifications enabled", zap.String("topic", cfg.PubSub.TopicName))
		a.publisher = pub
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (bank.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to postgres")
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		logger.Info("opening sqlite", zap.String("dsn", cfg.DSN))
		store, err := sqlite.Open(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db.driver %q", cfg.Driver)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the problem store.
func (a *App) Store() bank.Store {
	return a.store
}

// Publisher returns the batch publisher, or nil when notifications are off.
func (a *App) Publisher() bank.Publisher {
	if a.publisher == nil {
		return nil
	}
	return a.publisher
}

// NewHarvester builds the pipeline from configuration. subjects and
// giaTypes override the configured values when non-empty.
func (a *App) NewHarvester(giaTypes []bank.GiaType, subjects []string) *harvest.Harvester {
	cfg := a.cfg
	retryMin, retryMax := cfg.RetryBounds()
	policy := bank.NewJitterRetryPolicy(cfg.HTTP.MaxAttempts, retryMin, retryMax)
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:          cfg.HTTP.UserAgent,
		Timeout:            cfg.RequestTimeout(),
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	}, policy, a.logger.Named("fetcher"))

	var pacer pacing.Pacer
	if cfg.Harvest.FetchMode == config.FetchModeConcurrent {
		pacer = pacing.NewLimiter(cfg.Harvest.RequestsPerSecond, cfg.Harvest.FetchConcurrency)
	} else {
		minPause, maxPause := cfg.PacingBounds()
		pacer = pacing.NewJitter(minPause, maxPause)
	}

	if len(giaTypes) == 0 {
		giaTypes = cfg.GiaTypes()
	}
	if len(subjects) == 0 {
		subjects = cfg.Harvest.Subjects
	}
	a.logger.Info("harvester configured",
		zap.Any("gia_types", giaTypes),
		zap.Strings("subjects", subjects),
		zap.String("fetch_mode", cfg.Harvest.FetchMode),
		zap.Int("max_attempts", policy.MaxAttempts()),
		zap.Duration("retry_min", retryMin),
		zap.Duration("retry_max", retryMax),
	)
	return harvest.New(fetcher, a.store, pacer, a.Publisher(), system.New(), uuid.New(), harvest.Config{
		GiaTypes:               giaTypes,
		Subjects:               subjects,
		FetchMode:              cfg.Harvest.FetchMode,
		FetchConcurrency:       cfg.Harvest.FetchConcurrency,
		DiscoveryConcurrency:   cfg.Harvest.DiscoveryConcurrency,
		ContinueOnSubjectError: cfg.Harvest.ContinueOnSubjectError,
		HostTemplate:           cfg.Harvest.HostTemplate,
		Topic:                  cfg.PubSub.TopicName,
	}, a.logger.Named("harvest"))
}

// Close shuts down the publisher and the store.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
