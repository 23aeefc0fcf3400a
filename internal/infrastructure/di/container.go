// Package di wires configuration, storage, adapters and services into one
// container the entrypoint and router share.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/api/handlers"
	"github.com/streamtip/settlement_service/internal/domain/repositories"
	"github.com/streamtip/settlement_service/internal/domain/services/aggregator"
	"github.com/streamtip/settlement_service/internal/domain/services/analytics"
	"github.com/streamtip/settlement_service/internal/domain/services/ledger"
	"github.com/streamtip/settlement_service/internal/domain/services/orchestrator"
	"github.com/streamtip/settlement_service/internal/domain/services/settlement"
	"github.com/streamtip/settlement_service/internal/infrastructure/adapters/bridge"
	"github.com/streamtip/settlement_service/internal/infrastructure/adapters/swap"
	"github.com/streamtip/settlement_service/internal/infrastructure/cache"
	"github.com/streamtip/settlement_service/internal/infrastructure/config"
	"github.com/streamtip/settlement_service/internal/infrastructure/database"
	infrarepos "github.com/streamtip/settlement_service/internal/infrastructure/repositories"
	"github.com/streamtip/settlement_service/internal/infrastructure/repositories/memstore"
	"github.com/streamtip/settlement_service/internal/workers/settlement_worker"
	"github.com/streamtip/settlement_service/pkg/keylock"
	"github.com/streamtip/settlement_service/pkg/logger"
	"github.com/streamtip/settlement_service/pkg/retry"
)

// Container holds the wired application graph
type Container struct {
	Config    *config.Config
	Logger    *logger.Logger
	ZapLogger *zap.Logger
	Version   string

	DB    *sqlx.DB // nil in demo mode
	Redis cache.RedisClient

	TipRepo        repositories.TipRepository
	SettlementRepo repositories.SettlementRepository
	GroupRepo      repositories.PendingGroupRepository

	SwapClient   swap.SwapClient
	BridgeClient bridge.BridgeClient

	LedgerService       *ledger.Service
	AggregatorService   *aggregator.Service
	OrchestratorService *orchestrator.Service
	AnalyticsService    *analytics.Service
	SettlementService   *settlement.Service

	Worker *settlement_worker.Worker
}

// NewContainer builds the full application graph. Demo mode swaps Postgres
// and the external providers for in-memory equivalents; Redis stays
// optional in both modes.
func NewContainer(cfg *config.Config, log *logger.Logger, version string) (*Container, error) {
	c := &Container{
		Config:    cfg,
		Logger:    log,
		ZapLogger: log.Zap(),
		Version:   version,
	}

	if err := c.initStorage(); err != nil {
		return nil, err
	}
	c.initAdapters()
	c.initServices()
	return c, nil
}

func (c *Container) initStorage() error {
	if c.Config.DemoMode {
		store := memstore.New()
		c.TipRepo = store.Tips()
		c.SettlementRepo = store.Settlements()
		c.GroupRepo = store.PendingGroups()
		c.ZapLogger.Info("Demo mode enabled, using in-memory storage")
	} else {
		// Postgres may still be starting when the service comes up
		var db *sqlx.DB
		connectErr := retry.Do(context.Background(), retry.DefaultPolicy(), c.ZapLogger, func() error {
			var err error
			db, err = database.NewConnection(c.Config.Database)
			return err
		})
		if connectErr != nil {
			return fmt.Errorf("connect database: %w", connectErr)
		}
		if err := database.RunMigrations(c.Config.Database.URL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		c.DB = db
		c.TipRepo = infrarepos.NewTipRepository(db)
		c.SettlementRepo = infrarepos.NewSettlementRepository(db)
		c.GroupRepo = infrarepos.NewPendingGroupRepository(db)
	}

	redisClient, err := cache.NewRedisClient(&c.Config.Redis, c.ZapLogger)
	if err != nil {
		// Analytics degrade to uncached reads without Redis
		c.ZapLogger.Warn("Redis unavailable, analytics caching disabled", zap.Error(err))
	} else {
		c.Redis = redisClient
	}
	return nil
}

func (c *Container) initAdapters() {
	if c.Config.DemoMode {
		c.SwapClient = swap.NewSimulator(decimal.NewFromFloat(0.000001))
		c.BridgeClient = bridge.NewSimulator()
		return
	}

	c.SwapClient = swap.NewClient(swap.Config{
		BaseURL: c.Config.Swap.BaseURL,
		APIKey:  c.Config.Swap.APIKey,
		Timeout: time.Duration(c.Config.Swap.TimeoutSec) * time.Second,
	}, c.ZapLogger)

	c.BridgeClient = bridge.NewClient(bridge.Config{
		BaseURL: c.Config.Bridge.BaseURL,
		APIKey:  c.Config.Bridge.APIKey,
		Timeout: time.Duration(c.Config.Bridge.TimeoutSec) * time.Second,
	}, c.ZapLogger)
}

func (c *Container) initServices() {
	cfg := c.Config

	c.LedgerService = ledger.NewService(c.TipRepo, c.SettlementRepo, c.GroupRepo, c.ZapLogger)

	c.AnalyticsService = analytics.NewService(c.LedgerService, c.Redis, c.ZapLogger)

	c.OrchestratorService = orchestrator.NewService(c.LedgerService, c.SwapClient, c.BridgeClient, c.AnalyticsService, orchestrator.Config{
		PlatformFeePct:   decimal.NewFromFloat(cfg.Settlement.PlatformFeePct),
		BusinessSharePct: decimal.NewFromFloat(cfg.Settlement.BusinessSharePct),
		DestChainID:      cfg.Chains.Destination.ChainID,
		ConfirmDeadline:  time.Duration(cfg.Bridge.ConfirmDeadlineSec) * time.Second,
		PollInterval:     time.Duration(cfg.Bridge.PollIntervalSec) * time.Second,
	}, c.ZapLogger)

	// validated by config.Load
	minBatch, _ := cfg.Settlement.MinBatchAmountDecimal()
	c.AggregatorService = aggregator.NewService(
		c.LedgerService,
		c.OrchestratorService,
		keylock.New(cfg.Settlement.LockStripes),
		aggregator.Config{
			MinBatchAmount: minBatch,
			MaxBatchWindow: time.Duration(cfg.Settlement.MaxBatchWindowSec) * time.Second,
		},
		c.ZapLogger,
	)

	sourceChains := make(map[int64]bool, len(cfg.Chains.Sources))
	for _, src := range cfg.Chains.Sources {
		sourceChains[src.ChainID] = true
	}
	c.SettlementService = settlement.NewService(
		c.LedgerService,
		c.AggregatorService,
		c.OrchestratorService,
		c.AnalyticsService,
		settlement.Config{
			SourceChainIDs:   sourceChains,
			MaxTipMessageLen: cfg.Settlement.MaxTipMessageLen,
		},
		c.ZapLogger,
	)

	c.Worker = settlement_worker.NewWorker(
		c.AggregatorService,
		c.OrchestratorService,
		settlement_worker.Schedules{
			WindowSweep: cfg.Workers.WindowSweepSchedule,
			Redispatch:  cfg.Workers.RedispatchSchedule,
			HealthCheck: cfg.Workers.HealthCheckSchedule,
		},
		c.ZapLogger,
	)
}

// HealthChecks returns the dependency probes for the health endpoint
func (c *Container) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"bridge": func(ctx context.Context) error {
			status := c.OrchestratorService.BridgeStatus()
			if !status.CheckedAt.IsZero() && !status.Healthy {
				return fmt.Errorf("bridge provider unhealthy: %s", status.LastError)
			}
			return nil
		},
	}
	if c.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			return database.HealthCheck(c.DB)
		}
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.Redis.Ping(ctx)
		}
	}
	return checks
}

// Close releases held resources
func (c *Container) Close() {
	if c.Worker != nil {
		c.Worker.Stop()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.ZapLogger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.ZapLogger.Warn("Database close failed", zap.Error(err))
		}
	}
}
