package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nickyhof/AdOrchDB/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSLASchedule runs the SLA check every fifteen minutes.
const DefaultSLASchedule = "*/15 * * * *"

// SLAMonitor periodically counts approvals close to their deadline, logs a
// warning when there are any and publishes the count as a gauge.
type SLAMonitor struct {
	engine   *Engine
	schedule string
	horizon  time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
	last      int
}

func NewSLAMonitor(engine *Engine, schedule string, horizon time.Duration, logger *zap.Logger) (*SLAMonitor, error) {
	if schedule == "" {
		schedule = DefaultSLASchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	if horizon <= 0 {
		horizon = DashboardHorizon
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAMonitor{
		engine:   engine,
		schedule: schedule,
		horizon:  horizon,
		logger:   logger,
	}, nil
}

// Start schedules the check. Calling Start on a running monitor does nothing.
func (m *SLAMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scheduler != nil {
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(m.schedule, func() {
		if _, err := m.RunOnce(context.Background()); err != nil {
			m.logger.Error("sla check failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sla check to scheduler: %w", err)
	}

	scheduler.Start()
	m.scheduler = scheduler
	m.logger.Info("sla monitor started",
		zap.String("schedule", m.schedule),
		zap.Duration("horizon", m.horizon))
	return nil
}

// Stop halts the scheduler and waits for a running check to finish.
func (m *SLAMonitor) Stop() {
	m.mu.Lock()
	scheduler := m.scheduler
	m.scheduler = nil
	m.mu.Unlock()

	if scheduler == nil {
		return
	}
	<-scheduler.Stop().Done()
	m.logger.Info("sla monitor stopped")
}

// RunOnce performs one check and returns the number of approvals at risk.
func (m *SLAMonitor) RunOnce(ctx context.Context) (int, error) {
	count, err := m.engine.SLAWarningCount(ctx, m.horizon)
	if err != nil {
		return 0, err
	}

	metrics.SetSLAWarnings(count)

	m.mu.Lock()
	m.last = count
	m.mu.Unlock()

	if count > 0 {
		m.logger.Warn("approvals approaching sla deadline",
			zap.Int("count", count),
			zap.Duration("horizon", m.horizon))
	}
	return count, nil
}

// Last returns the result of the most recent check.
func (m *SLAMonitor) Last() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
