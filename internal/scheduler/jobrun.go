package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// JobRun is the persisted guard row for one job invocation.
type JobRun struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	Job        string       `gorm:"type:varchar(64);not null;index"`
	StartedAt  time.Time    `gorm:"not null"`
	FinishedAt *time.Time   `gorm:""`
	Processed  int          `gorm:"not null;default:0"`
	Errors     int          `gorm:"not null;default:0"`
	LastError  *string      `gorm:"type:text"`
}

// TableName sets the database table name.
func (JobRun) TableName() string { return "job_runs" }

type jobRun struct {
	job            string
	runID          snowflake.ID
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

// ensureJobRun attaches a run guard to the context so that nested job
// invocations share one guard row instead of opening their own.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) recordJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	row := JobRun{
		ID:        run.runID,
		Job:       run.job,
		StartedAt: run.startedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Warn("job run guard insert failed", zap.String("job", run.job), zap.Error(err))
	}
	s.log.Info("job start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID.String()),
	)
}

func (s *Scheduler) recordJobFinish(ctx context.Context, run *jobRun, jobErr error) {
	if run == nil {
		return
	}
	now := s.clock.Now()
	updates := map[string]any{
		"finished_at": now,
		"processed":   run.processedCount,
		"errors":      run.errorCount,
	}
	if jobErr != nil {
		updates["last_error"] = jobErr.Error()
	}
	if err := s.db.WithContext(ctx).Model(&JobRun{}).
		Where("id = ?", run.runID).
		Updates(updates).Error; err != nil {
		s.log.Warn("job run guard update failed", zap.String("job", run.job), zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID.String()),
		zap.Int64("duration_ms", now.Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	if run.errorCount > 0 {
		s.log.Warn("job finish", fields...)
		return
	}
	s.log.Info("job finish", fields...)
}
