// Package statusupdate demotes overdue tasks to PAST_DUE, one at a time on
// read or in bulk on demand.
package statusupdate

import (
	"context"
	"fmt"
	"time"

	"github.com/example/task-lifecycle/domain/task"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Mode selects the bulk update algorithm.
type Mode string

const (
	// ModeQueryPatch loads a batch of candidates, re-checks each with the
	// strategy and saves the changed ones.
	ModeQueryPatch Mode = "query-patch"
	// ModeConditional issues a single set-based UPDATE.
	ModeConditional Mode = "conditional"
)

// DefaultBatchSize caps the candidates loaded per query-patch run.
const DefaultBatchSize = 100

// Config configures an Updater.
type Config struct {
	Mode      Mode
	BatchSize int
}

// Result describes one bulk run.
type Result struct {
	RunID     string        `json:"runId"`
	Mode      Mode          `json:"mode"`
	Updated   int64         `json:"updated"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Updater applies a StatusUpdateStrategy to single tasks and to the store.
type Updater struct {
	repo     task.Repository
	strategy task.StatusUpdateStrategy
	clock    task.Clock
	cfg      Config
	logger   types.Logger
	group    singleflight.Group
}

// NewUpdater creates an Updater. Unset config fields take their defaults.
func NewUpdater(repo task.Repository, strategy task.StatusUpdateStrategy, clock task.Clock, cfg Config, logger types.Logger) *Updater {
	if clock == nil {
		clock = task.SystemClock
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeConditional
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Updater{
		repo:     repo,
		strategy: strategy,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Mode returns the configured bulk mode.
func (u *Updater) Mode() Mode {
	return u.cfg.Mode
}

// UpdateStatus demotes t to PAST_DUE in memory when the strategy says so and
// reports whether it changed. Nothing is persisted.
func (u *Updater) UpdateStatus(t *task.Task) bool {
	if !u.strategy.ShouldUpdate(t) {
		return false
	}
	t.Status = task.StatusPastDue
	return true
}

// UpdateStatusAll demotes every eligible stored task. Concurrent callers
// share a single in-flight run and receive the same Result.
func (u *Updater) UpdateStatusAll(ctx context.Context) (Result, error) {
	v, err, shared := u.group.Do("update-status-all", func() (any, error) {
		return u.run(ctx)
	})
	if shared {
		u.logger.Debug("Joined in-flight status update run")
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (u *Updater) run(ctx context.Context) (Result, error) {
	res := Result{
		RunID:     uuid.NewString(),
		Mode:      u.cfg.Mode,
		StartedAt: u.clock(),
	}
	log := u.logger.With("run_id", res.RunID, "mode", string(res.Mode))

	var err error
	switch u.cfg.Mode {
	case ModeQueryPatch:
		res.Updated, err = u.queryPatch(ctx, res.StartedAt, log)
	case ModeConditional:
		res.Updated, err = u.repo.UpdateStatusForDueDateTimeAndOldStatus(ctx, task.StatusNotDone, task.StatusPastDue, res.StartedAt)
	default:
		err = fmt.Errorf("unknown status update mode %q", u.cfg.Mode)
	}
	res.Duration = u.clock().Sub(res.StartedAt)
	if err != nil {
		log.WithError(err).Error("Status update run failed")
		return Result{}, err
	}

	log.Info("Status update run finished", "updated", res.Updated, "duration", res.Duration.String())
	return res, nil
}

// queryPatch runs inside one transaction so the re-check and the write see
// the same rows.
func (u *Updater) queryPatch(ctx context.Context, now time.Time, log types.Logger) (int64, error) {
	var updated int64
	err := u.repo.WithinTransaction(ctx, func(tx task.Repository) error {
		candidates, err := tx.FindByStatusAndDueDateTimeBefore(ctx, task.StatusNotDone, now, u.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			log.Info("No tasks to update")
			return nil
		}

		changed := make([]*task.Task, 0, len(candidates))
		for _, t := range candidates {
			if u.UpdateStatus(t) {
				changed = append(changed, t)
			}
		}
		if len(changed) == 0 {
			return nil
		}

		if _, err := tx.SaveAll(ctx, changed); err != nil {
			return err
		}
		updated = int64(len(changed))
		return nil
	})
	return updated, err
}
