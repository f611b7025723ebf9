package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"
)

const (
	DefaultRetentionMaxRows = 3000
	DefaultRetentionBatch   = 2000
	RetentionJobTimeout     = 2 * time.Minute
	retentionLockName       = "audit-retention"
)

// ErrLockHeld is returned by a Locker when another replica holds the lock.
var ErrLockHeld = errors.New("lock held by another replica")

// Locker runs fn while holding a named distributed lock.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func() error) error
}

// RetentionConfig configures the prune job.
type RetentionConfig struct {
	Schedule string
	MaxRows  int
	Batch    int
}

// PruneCount returns how many of the oldest rows to delete when the table
// holds total rows. Nothing is deleted at or below maxRows; above it, at
// least batch rows go so the job does not run on every insert.
func PruneCount(total int64, maxRows, batch int) int64 {
	if total <= int64(maxRows) {
		return 0
	}
	excess := total - int64(maxRows)
	return max(int64(batch), excess)
}

// Retention keeps audit_log bounded.
type Retention struct {
	store  Store
	locker Locker
	cfg    RetentionConfig
	ctab   *crontab.Crontab
	log    zerolog.Logger
}

// NewRetention creates the prune job. locker may be nil, in which case every
// replica prunes on its own schedule.
func NewRetention(store Store, locker Locker, cfg RetentionConfig, log zerolog.Logger) *Retention {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultRetentionMaxRows
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultRetentionBatch
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "*/5 * * * *"
	}
	return &Retention{
		store:  store,
		locker: locker,
		cfg:    cfg,
		ctab:   crontab.New(),
		log:    log.With().Str("component", "audit-retention").Logger(),
	}
}

// Prune deletes the oldest rows when the table is over its limit and returns
// the number removed.
func (r *Retention) Prune(ctx context.Context) (int64, error) {
	var deleted int64
	prune := func() error {
		total, err := r.store.CountAudit(ctx)
		if err != nil {
			return fmt.Errorf("count audit rows: %w", err)
		}
		n := PruneCount(total, r.cfg.MaxRows, r.cfg.Batch)
		if n == 0 {
			return nil
		}
		deleted, err = r.store.DeleteOldestAudit(ctx, int(n))
		if err != nil {
			return fmt.Errorf("delete audit rows: %w", err)
		}
		return nil
	}

	var err error
	if r.locker != nil {
		err = r.locker.WithLock(ctx, retentionLockName, RetentionJobTimeout, prune)
	} else {
		err = prune()
	}
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Msg("pruned old audit logs")
	}
	return deleted, nil
}

// Run schedules the prune job and blocks until ctx is cancelled.
func (r *Retention) Run(ctx context.Context) error {
	if err := r.ctab.AddJob(r.cfg.Schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), RetentionJobTimeout)
		defer cancel()
		if _, err := r.Prune(jobCtx); err != nil {
			if errors.Is(err, ErrLockHeld) {
				r.log.Debug().Msg("audit prune skipped, another replica holds the lock")
				return
			}
			r.log.Error().Err(err).Msg("audit prune failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule audit retention %q: %w", r.cfg.Schedule, err)
	}
	r.log.Info().Str("schedule", r.cfg.Schedule).Msg("audit retention scheduled")

	<-ctx.Done()
	r.ctab.Shutdown()
	return nil
}
