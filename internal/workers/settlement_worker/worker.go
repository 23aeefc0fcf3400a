// Package settlement_worker runs the periodic maintenance jobs behind the
// settlement core: window-expiry sweeps, redispatch of stranded batches,
// and bridge provider health refresh.
package settlement_worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/services/aggregator"
	"github.com/streamtip/settlement_service/internal/domain/services/orchestrator"
)

// Schedules holds the cron expressions for each job
type Schedules struct {
	WindowSweep string
	Redispatch  string
	HealthCheck string
}

type Worker struct {
	aggregator   *aggregator.Service
	orchestrator *orchestrator.Service
	schedules    Schedules
	cron         *cron.Cron
	logger       *zap.Logger
}

func NewWorker(
	aggregatorSvc *aggregator.Service,
	orchestratorSvc *orchestrator.Service,
	schedules Schedules,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		aggregator:   aggregatorSvc,
		orchestrator: orchestratorSvc,
		schedules:    schedules,
		cron:         cron.New(),
		logger:       logger,
	}
}

func (w *Worker) Start() error {
	// Close batches whose oldest tip aged past the batching window
	_, err := w.cron.AddFunc(w.schedules.WindowSweep, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		closed, err := w.aggregator.SweepExpiredWindows(ctx)
		if err != nil {
			w.logger.Error("Window sweep failed", zap.Error(err))
			return
		}
		if closed > 0 {
			w.logger.Info("Window sweep closed batches", zap.Int("count", closed))
		}
	})
	if err != nil {
		return err
	}

	// Re-run batches stranded in batching or failed
	_, err = w.cron.AddFunc(w.schedules.Redispatch, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		redispatched, err := w.orchestrator.RedispatchStuck(ctx)
		if err != nil {
			w.logger.Error("Redispatch sweep failed", zap.Error(err))
			return
		}
		if redispatched > 0 {
			w.logger.Info("Redispatched stranded batches", zap.Int("count", redispatched))
		}
	})
	if err != nil {
		return err
	}

	// Refresh the cached bridge provider health
	_, err = w.cron.AddFunc(w.schedules.HealthCheck, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		status := w.orchestrator.RefreshBridgeStatus(ctx)
		if !status.Healthy {
			w.logger.Warn("Bridge provider unhealthy", zap.String("error", status.LastError))
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Settlement worker started",
		zap.String("window_sweep", w.schedules.WindowSweep),
		zap.String("redispatch", w.schedules.Redispatch),
		zap.String("health_check", w.schedules.HealthCheck))
	return nil
}

func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Settlement worker stopped")
}
