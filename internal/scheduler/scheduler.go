// Package scheduler runs a backup, followed by a retention sweep, on a cron
// schedule until its context is cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sqlite-backup/internal/backup"
	"sqlite-backup/internal/logging"
	"sqlite-backup/internal/snapshot"
)

// parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as @daily or @every 6h.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Options controls what each scheduled run does
type Options struct {
	Spec          string
	Compress      bool
	RetentionDays int
	// RunOnStart performs one run immediately, before the first tick.
	RunOnStart bool
	// OnRun is called after every run, from the cron goroutine.
	OnRun func(RunReport)
}

// RunReport is the outcome of one scheduled run
type RunReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Snapshot  *snapshot.Snapshot
	Cleanup   *backup.CleanupResult
	Err       error
	// Retryable is set when Err is transient and the next tick may succeed.
	Retryable bool
}

// Scheduler triggers backups on a cron schedule
type Scheduler struct {
	service  backup.Service
	logger   *logging.Logger
	opts     Options
	schedule cron.Schedule

	mu   sync.Mutex
	runs int
}

// ValidateSpec reports whether spec is an accepted cron expression
func ValidateSpec(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// New parses the schedule and returns a Scheduler
func New(service backup.Service, logger *logging.Logger, opts Options) (*Scheduler, error) {
	if service == nil {
		return nil, errors.New("scheduler requires a backup service")
	}
	if opts.RetentionDays < 0 {
		return nil, fmt.Errorf("retention days must not be negative, got %d", opts.RetentionDays)
	}
	schedule, err := parser.Parse(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", opts.Spec, err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Scheduler{
		service:  service,
		logger:   logger,
		opts:     opts,
		schedule: schedule,
	}, nil
}

// Next returns the first activation time after t
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Runs returns the number of completed runs
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Start blocks until ctx is done, running the job on every tick. A tick that
// arrives while the previous run is still going is skipped. Start waits for
// an in-flight run to finish before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	c.Schedule(s.schedule, cron.FuncJob(func() { s.RunOnce(ctx) }))

	s.logger.WithFields(map[string]interface{}{
		"schedule": s.opts.Spec,
		"next_run": s.Next(time.Now()).Format(time.RFC3339),
	}).Info("Scheduler started")

	if s.opts.RunOnStart {
		s.RunOnce(ctx)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.Info("Scheduler stopped")
	return nil
}

// RunOnce creates a snapshot and, when a retention period is set, prunes
// old ones. A failed backup skips the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (report RunReport) {
	report.StartedAt = time.Now()
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		s.mu.Lock()
		s.runs++
		s.mu.Unlock()
		if s.opts.OnRun != nil {
			s.opts.OnRun(report)
		}
	}()

	if err := ctx.Err(); err != nil {
		report.Err = err
		return report
	}

	snap, err := s.service.CreateBackup(ctx, s.opts.Compress)
	report.Snapshot = snap
	if err != nil {
		s.recordFailure(&report, "Scheduled backup failed", err)
		return report
	}

	if s.opts.RetentionDays > 0 {
		result, err := s.service.CleanupBackups(ctx, s.opts.RetentionDays)
		report.Cleanup = result
		if err != nil {
			s.recordFailure(&report, "Scheduled cleanup failed", err)
		}
	}
	return report
}

func (s *Scheduler) recordFailure(report *RunReport, msg string, err error) {
	report.Err = err
	report.Retryable = backup.IsRetryable(err)
	s.logger.WithFields(map[string]interface{}{
		"error":     err.Error(),
		"kind":      string(backup.KindOf(err)),
		"retryable": report.Retryable,
		"next_run":  s.Next(time.Now()).Format(time.RFC3339),
	}).Warn(msg)
}
