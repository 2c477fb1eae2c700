// Package scheduler drives the periodic jobs of the platform. Jobs run
// batch sequential within a tick: no intra-job parallelism, correctness
// over throughput.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/backorder"
	billingdomain "github.com/openfoodhub/foodhub/internal/billing/domain"
	"github.com/openfoodhub/foodhub/internal/clock"
	"github.com/openfoodhub/foodhub/internal/notification"
	obsmetrics "github.com/openfoodhub/foodhub/internal/observability/metrics"
	subscriptiondomain "github.com/openfoodhub/foodhub/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")
	ErrUnknownJob    = errors.New("scheduler: unknown job")
)

const (
	JobBillablePeriods      = "billable_periods"
	JobScheduleSync         = "schedule_sync"
	JobPlacement            = "placement"
	JobConfirmation         = "confirmation"
	JobNotificationDelivery = "notification_delivery"
	JobBackorderSync        = "backorder_sync"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	BillingSvc      billingdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Deliverer       *notification.Deliverer
	BackorderSvc    *backorder.Service
	Config          Config `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	billingSvc      billingdomain.Service
	subscriptionSvc subscriptiondomain.Service
	deliverer       *notification.Deliverer
	backorderSvc    *backorder.Service

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.BillingSvc == nil || p.SubscriptionSvc == nil || p.Deliverer == nil || p.BackorderSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		billingSvc:      p.BillingSvc,
		subscriptionSvc: p.SubscriptionSvc,
		deliverer:       p.Deliverer,
		backorderSvc:    p.BackorderSvc,
		lastRun:         map[string]time.Time{},
	}, nil
}

type jobSpec struct {
	Name     string
	Timeout  time.Duration
	Interval time.Duration
	Run      func(context.Context) error
}

func (s *Scheduler) jobs() []jobSpec {
	return []jobSpec{
		{JobBillablePeriods, 5 * time.Minute, s.cfg.SplitterInterval, s.billingSvc.RunCurrent},
		{JobScheduleSync, s.cfg.JobTimeout, 0, s.subscriptionSvc.SyncSchedules},
		{JobPlacement, 5 * time.Minute, 0, s.subscriptionSvc.PlaceOrders},
		{JobConfirmation, 5 * time.Minute, 0, s.subscriptionSvc.ConfirmOrders},
		{JobNotificationDelivery, s.cfg.JobTimeout, 0, func(ctx context.Context) error {
			return s.deliverer.DeliverPending(ctx, s.cfg.NotificationBatchSize)
		}},
		{JobBackorderSync, 5 * time.Minute, 0, s.backorderSvc.Run},
	}
}

func (s *Scheduler) runJob(parent context.Context, spec jobSpec) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, spec.Timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, spec.Name)
	if owner {
		s.recordJobStart(ctx, run)
	}
	jobMetrics := obsmetrics.Jobs()
	jobMetrics.IncJobRun(spec.Name)

	err := s.invoke(ctx, spec)
	jobMetrics.ObserveJobDuration(spec.Name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.recordJobFinish(parent, run, err)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		jobMetrics.IncJobTimeout(spec.Name)
	}
	jobMetrics.IncJobError(spec.Name, err)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", spec.Name),
			zap.Duration("timeout", spec.Timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", spec.Name, err)
}

// invoke isolates a job panic so one broken job cannot take down the run
// loop.
func (s *Scheduler) invoke(ctx context.Context, spec jobSpec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", spec.Name, r)
		}
	}()
	return spec.Run(ctx)
}

// due reports whether a job's interval has elapsed since its last start.
// Jobs with a zero interval run every tick.
func (s *Scheduler) due(name string, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	if ok && now.Sub(last) < interval {
		return false
	}
	s.lastRun[name] = now
	return true
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	now := s.clock.Now()
	var err error
	for _, spec := range s.jobs() {
		if !s.isJobEnabled(spec.Name) {
			continue
		}
		if !s.due(spec.Name, spec.Interval, now) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, spec))
	}
	return err
}

// RunJob triggers one job by name regardless of its interval. Used by the
// ops server.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, spec := range s.jobs() {
		if strings.EqualFold(spec.Name, name) {
			return s.runJob(ctx, spec)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	jobMetrics := obsmetrics.Jobs()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			jobMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means all jobs run (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
