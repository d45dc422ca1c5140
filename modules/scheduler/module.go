// Package scheduler runs the bulk status update on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/task-lifecycle/events"
	"github.com/example/task-lifecycle/modules/statusupdate"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/robfig/cron/v3"
)

// DefaultLockKey is the lock name shared by every replica.
const DefaultLockKey = "status-sweep"

// cronParser accepts 5-field and 6-field (leading seconds) expressions plus
// descriptors such as @hourly or @every 1m.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sweeper runs one bulk status update.
type Sweeper interface {
	UpdateStatusAll(ctx context.Context) (statusupdate.Result, error)
}

// Config configures the scheduler.
type Config struct {
	// Enabled turns the loop on. A disabled scheduler starts and stops as a no-op.
	Enabled bool
	Cron    string
	LockKey string
	LockTTL time.Duration
}

// SchedulerModule triggers a Sweeper on a cron schedule.
type SchedulerModule struct {
	cfg      Config
	schedule cron.Schedule
	sweeper  Sweeper
	locker   Locker
	eventBus mono.EventBus
	logger   types.Logger

	running  atomic.Bool
	mu       sync.RWMutex
	last     *statusupdate.Result
	lastErr  error
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// Compile-time interface checks.
var _ mono.Module = (*SchedulerModule)(nil)
var _ mono.EventEmitterModule = (*SchedulerModule)(nil)
var _ mono.HealthCheckableModule = (*SchedulerModule)(nil)

// ParseCron validates a cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NewModule creates a SchedulerModule. locker may be nil for single-replica
// deployments.
func NewModule(cfg Config, sweeper Sweeper, locker Locker, logger types.Logger) (*SchedulerModule, error) {
	if cfg.LockKey == "" {
		cfg.LockKey = DefaultLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 55 * time.Second
	}

	m := &SchedulerModule{
		cfg:     cfg,
		sweeper: sweeper,
		locker:  locker,
		logger:  logger.WithModule("scheduler"),
	}

	if cfg.Enabled {
		schedule, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, err
		}
		m.schedule = schedule
	}
	return m, nil
}

// Name returns the module name.
func (m *SchedulerModule) Name() string {
	return "scheduler"
}

func (m *SchedulerModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

func (m *SchedulerModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.StatusSweepCompletedV1.ToBase(),
	}
}

// Start begins the schedule loop when enabled.
func (m *SchedulerModule) Start(_ context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("Scheduled status updates disabled")
		return nil
	}

	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})

	go m.run(ctx)

	m.logger.Info("Scheduler started", "cron", m.cfg.Cron, "distributed_lock", m.locker != nil)
	return nil
}

// run waits for each scheduled instant and sweeps. Ticks never overlap
// because a single goroutine executes them.
func (m *SchedulerModule) run(ctx context.Context) {
	defer close(m.doneChan)

	for {
		now := time.Now()
		next := m.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-m.stopChan:
			timer.Stop()
			m.logger.Info("Scheduler received stop signal")
			return
		case <-timer.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one sweep unless one is already running or another replica
// holds the lock. Failures are logged and recorded for Health.
func (m *SchedulerModule) Tick(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		m.logger.Warn("Previous status sweep still running, skipping tick")
		return
	}
	defer m.running.Store(false)

	if m.locker != nil {
		release, ok, err := m.locker.TryLock(ctx, m.cfg.LockKey, m.cfg.LockTTL)
		if err != nil {
			m.logger.WithError(err).Warn("Could not acquire sweep lock, skipping tick")
			m.record(nil, err)
			return
		}
		if !ok {
			m.logger.Debug("Sweep lock held by another replica, skipping tick")
			return
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				m.logger.WithError(err).Warn("Failed to release sweep lock")
			}
		}()
	}

	res, err := m.sweep(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Scheduled status sweep failed")
		m.record(nil, err)
		return
	}
	m.record(&res, nil)
	m.publish(res)
}

// sweep turns a panicking sweeper into a failed run so the loop survives.
func (m *SchedulerModule) sweep(ctx context.Context) (res statusupdate.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("status sweep panicked: %v", r)
		}
	}()
	return m.sweeper.UpdateStatusAll(ctx)
}

func (m *SchedulerModule) record(res *statusupdate.Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res != nil {
		m.last = res
	}
	m.lastErr = err
}

func (m *SchedulerModule) publish(res statusupdate.Result) {
	if m.eventBus == nil {
		return
	}
	event := events.StatusSweepCompletedEvent{
		RunID:      res.RunID,
		Mode:       string(res.Mode),
		Updated:    res.Updated,
		StartedAt:  res.StartedAt,
		DurationMs: res.Duration.Milliseconds(),
	}
	if err := events.StatusSweepCompletedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.WithError(err).Warn("Failed to publish StatusSweepCompleted event", "run_id", res.RunID)
	}
}

// LastResult returns the most recent successful sweep, if any.
func (m *SchedulerModule) LastResult() (statusupdate.Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return statusupdate.Result{}, false
	}
	return *m.last, true
}

// Health reports the schedule and the outcome of the latest tick.
func (m *SchedulerModule) Health(ctx context.Context) mono.HealthStatus {
	details := map[string]any{
		"enabled": m.cfg.Enabled,
		"cron":    m.cfg.Cron,
		"running": m.running.Load(),
	}

	m.mu.RLock()
	if m.last != nil {
		details["last_run_id"] = m.last.RunID
		details["last_updated"] = m.last.Updated
		details["last_started_at"] = m.last.StartedAt
	}
	lastErr := m.lastErr
	m.mu.RUnlock()

	if p, ok := m.locker.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: fmt.Sprintf("lock backend unavailable: %v", err),
				Details: details,
			}
		}
	}

	if lastErr != nil {
		details["last_error"] = lastErr.Error()
		return mono.HealthStatus{
			Healthy: true,
			Message: "degraded: last sweep failed",
			Details: details,
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// Stop ends the loop, letting an in-flight sweep finish within ctx.
func (m *SchedulerModule) Stop(ctx context.Context) error {
	defer m.closeLocker()

	if m.stopChan == nil {
		return nil
	}

	m.logger.Info("Shutting down scheduler...")
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})

	select {
	case <-m.doneChan:
		m.cancel()
		m.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		m.cancel()
		m.logger.Warn("Scheduler shutdown timeout exceeded")
		return ctx.Err()
	}
}

func (m *SchedulerModule) closeLocker() {
	c, ok := m.locker.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		m.logger.WithError(err).Warn("Failed to close lock backend")
	}
}
