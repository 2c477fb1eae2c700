package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/openfoodhub/foodhub/internal/backorder"
	"github.com/openfoodhub/foodhub/internal/clock"
	"github.com/openfoodhub/foodhub/internal/config"
	"github.com/openfoodhub/foodhub/internal/notification"
	ordercyclerepo "github.com/openfoodhub/foodhub/internal/ordercycle/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type billingStub struct {
	runs int
	err  error
}

func (b *billingStub) Run(ctx context.Context, year int, month time.Month) error {
	b.runs++
	return b.err
}

func (b *billingStub) RunCurrent(ctx context.Context) error {
	b.runs++
	return b.err
}

type matcherStub struct {
	syncs         int
	placements    int
	confirmations int
	syncErr       error
	placeFn       func(context.Context) error
}

func (m *matcherStub) SyncSchedules(ctx context.Context) error {
	m.syncs++
	return m.syncErr
}

func (m *matcherStub) PlaceOrders(ctx context.Context) error {
	m.placements++
	if m.placeFn != nil {
		return m.placeFn(ctx)
	}
	return nil
}

func (m *matcherStub) PlaceOrdersForCycle(ctx context.Context, orderCycleID snowflake.ID) error {
	m.placements++
	return nil
}

func (m *matcherStub) ConfirmOrders(ctx context.Context) error {
	m.confirmations++
	return nil
}

type schedFixture struct {
	db      *gorm.DB
	sched   *Scheduler
	clock   *clock.FakeClock
	billing *billingStub
	matcher *matcherStub
}

func setupSchedulerTest(t *testing.T, cfg Config) *schedFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&JobRun{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, time.May, 10, 6, 0, 0, 0, time.UTC))

	billingSvc := &billingStub{}
	matcherSvc := &matcherStub{}
	market := config.NewStaticMarketConfigHolder(config.MarketConfig{
		NotifyURL:  "http://notify.invalid",
		CatalogURL: "http://catalog.invalid",
	})

	sched, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fake,
		BillingSvc:      billingSvc,
		SubscriptionSvc: matcherSvc,
		Deliverer:       notification.NewDeliverer(db, zap.NewNop(), market),
		BackorderSvc: backorder.New(backorder.Params{
			DB:        db,
			Log:       zap.NewNop(),
			GenID:     node,
			Clock:     fake,
			Market:    market,
			CycleRepo: ordercyclerepo.New(),
		}),
		Config: cfg,
	})
	require.NoError(t, err)

	return &schedFixture{db: db, sched: sched, clock: fake, billing: billingSvc, matcher: matcherSvc}
}

func matcherJobs() []string {
	return []string{JobScheduleSync, JobPlacement, JobConfirmation}
}

func TestRunOnce_RunsEnabledJobsAndRecordsGuardRows(t *testing.T) {
	f := setupSchedulerTest(t, Config{EnabledJobs: matcherJobs()})

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, f.matcher.syncs)
	assert.Equal(t, 1, f.matcher.placements)
	assert.Equal(t, 1, f.matcher.confirmations)
	assert.Equal(t, 0, f.billing.runs, "billable_periods not in the enabled set")

	var runs []JobRun
	require.NoError(t, f.db.Order("started_at").Find(&runs).Error)
	require.Len(t, runs, 3)
	for _, run := range runs {
		assert.NotNil(t, run.FinishedAt)
		assert.Zero(t, run.Errors)
	}
}

func TestRunOnce_SplitterIntervalGatesReruns(t *testing.T) {
	f := setupSchedulerTest(t, Config{EnabledJobs: []string{JobBillablePeriods}})

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.billing.runs, "daily job does not rerun within its interval")

	f.clock.Advance(25 * time.Hour)
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 2, f.billing.runs)
}

func TestRunOnce_JobErrorIsReportedButOthersStillRun(t *testing.T) {
	f := setupSchedulerTest(t, Config{EnabledJobs: matcherJobs()})
	f.matcher.syncErr = errors.New("boom")

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobScheduleSync)
	assert.Equal(t, 1, f.matcher.placements, "later jobs still run")

	var run JobRun
	require.NoError(t, f.db.Where("job = ?", JobScheduleSync).First(&run).Error)
	assert.Equal(t, 1, run.Errors)
	require.NotNil(t, run.LastError)
	assert.Contains(t, *run.LastError, "boom")
}

func TestRunJob_UnknownName(t *testing.T) {
	f := setupSchedulerTest(t, Config{})
	err := f.sched.RunJob(context.Background(), "compost_rotation")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunJob_TriggersIgnoringInterval(t *testing.T) {
	f := setupSchedulerTest(t, Config{EnabledJobs: matcherJobs()})

	require.NoError(t, f.sched.RunJob(context.Background(), JobBillablePeriods))
	require.NoError(t, f.sched.RunJob(context.Background(), JobBillablePeriods))
	assert.Equal(t, 2, f.billing.runs)
}

func TestRunJob_DeadlineExceededIsSoftTimeout(t *testing.T) {
	f := setupSchedulerTest(t, Config{})
	f.matcher.placeFn = func(ctx context.Context) error {
		return context.DeadlineExceeded
	}

	err := f.sched.RunJob(context.Background(), JobPlacement)
	assert.NoError(t, err, "timeouts are observed, not escalated")
}

func TestRunJob_PanicBecomesError(t *testing.T) {
	f := setupSchedulerTest(t, Config{})
	f.matcher.placeFn = func(ctx context.Context) error {
		panic("stock ledger corrupted")
	}

	err := f.sched.RunJob(context.Background(), JobPlacement)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestIsJobEnabled_EmptyListEnablesEverything(t *testing.T) {
	f := setupSchedulerTest(t, Config{})
	for _, spec := range f.sched.jobs() {
		assert.True(t, f.sched.isJobEnabled(spec.Name))
	}
	f2 := setupSchedulerTest(t, Config{EnabledJobs: []string{JobPlacement}})
	assert.True(t, f2.sched.isJobEnabled(JobPlacement))
	assert.False(t, f2.sched.isJobEnabled(JobScheduleSync))
}
