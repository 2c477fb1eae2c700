// Package metrics exposes Prometheus instruments for the foodhub job runtime.
package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonDB               = "db"
	JobReasonConfig           = "config"
	JobReasonBusinessRule     = "business_rule"
	JobReasonUnknown          = "unknown"
)

const (
	StalePeriodOutcomeDeleted   = "deleted"
	StalePeriodOutcomeProtected = "protected"
)

// Config carries constant labels applied to every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// JobMetrics captures job-runtime health signals.
type JobMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Observer

	claimConflicts  *prometheus.CounterVec
	stockCaps       prometheus.Counter
	stalePeriods    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	backorders      *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	placementEmpty  prometheus.Counter
	placementPlaced prometheus.Counter
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the singleton job metrics registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

// JobsWithConfig returns the singleton job metrics registry using config labels.
func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

// ResetJobMetricsForTest resets the job metrics singleton for tests.
func ResetJobMetricsForTest() {
	jobMetricsOnce = sync.Once{}
	jobMetrics = nil
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "foodhub"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_job_runs_total",
		Help:        "Background job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "foodhub_job_duration_seconds",
		Help:        "Background job latency to protect batch freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_job_timeouts_total",
		Help:        "Background job timeouts that threaten batch SLAs.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_job_errors_total",
		Help:        "Background job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_job_batch_processed_total",
		Help:        "Batch items processed to gauge job throughput.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "foodhub_job_runloop_lag_seconds",
		Help:        "Job run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	claimConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_proxy_order_claim_conflicts_total",
		Help:        "Placement claims lost to a concurrent worker.",
		ConstLabels: constLabels,
	}, []string{"job"})
	stockCaps := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "foodhub_placement_stock_caps_total",
		Help:        "Line items whose quantity was capped by stock or exchange membership.",
		ConstLabels: constLabels,
	})
	stalePeriods := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_billable_periods_stale_total",
		Help:        "Stale billable periods found during cleanup, by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_notifications_delivered_total",
		Help:        "Outbox notifications by kind and delivery outcome.",
		ConstLabels: constLabels,
	}, []string{"kind", "outcome"})
	backorders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_backorders_total",
		Help:        "Backorders sent to the remote catalog by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "foodhub_diagnostics_anomalies_total",
		Help:        "Operational anomalies reported to diagnostics.",
		ConstLabels: constLabels,
	}, []string{"kind", "severity"})
	placementEmpty := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "foodhub_placement_empty_orders_total",
		Help:        "Proxy orders skipped because capping emptied the order.",
		ConstLabels: constLabels,
	})
	placementPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "foodhub_placement_orders_placed_total",
		Help:        "Proxy orders successfully placed.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		runLoopLag,
		claimConflicts,
		stockCaps,
		stalePeriods,
		notifications,
		backorders,
		anomalies,
		placementEmpty,
		placementPlaced,
	)

	return &JobMetrics{
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		jobTimeouts:     jobTimeouts,
		jobErrors:       jobErrors,
		batchProcessed:  batchProcessed,
		runLoopLag:      runLoopLag,
		claimConflicts:  claimConflicts,
		stockCaps:       stockCaps,
		stalePeriods:    stalePeriods,
		notifications:   notifications,
		backorders:      backorders,
		anomalies:       anomalies,
		placementEmpty:  placementEmpty,
		placementPlaced: placementPlaced,
	}
}

// IncJobRun increments the run counter for a job.
func (m *JobMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records job latency in seconds.
func (m *JobMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the job.
func (m *JobMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the error counter with a classified reason.
func (m *JobMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobError(err)).Inc()
}

// IncJobErrorReason increments the error counter for an explicit reason.
func (m *JobMetrics) IncJobErrorReason(job, reason string) {
	if m == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, reason).Inc()
}

// AddBatchProcessed records processed batch items for a job and resource.
func (m *JobMetrics) AddBatchProcessed(job, resource string, n int) {
	if m == nil || m.batchProcessed == nil || n <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(n))
}

// ObserveRunLoopLag records run loop lag beyond the configured interval.
func (m *JobMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil || m.runLoopLag == nil || lag <= 0 {
		return
	}
	m.runLoopLag.Observe(lag.Seconds())
}

func (m *JobMetrics) IncClaimConflict(job string) {
	if m == nil || m.claimConflicts == nil {
		return
	}
	m.claimConflicts.WithLabelValues(job).Inc()
}

func (m *JobMetrics) IncStockCap() {
	if m == nil || m.stockCaps == nil {
		return
	}
	m.stockCaps.Inc()
}

func (m *JobMetrics) IncStalePeriod(outcome string) {
	if m == nil || m.stalePeriods == nil {
		return
	}
	m.stalePeriods.WithLabelValues(outcome).Inc()
}

func (m *JobMetrics) IncNotification(kind, outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

func (m *JobMetrics) IncBackorder(outcome string) {
	if m == nil || m.backorders == nil {
		return
	}
	m.backorders.WithLabelValues(outcome).Inc()
}

func (m *JobMetrics) IncAnomaly(kind, severity string) {
	if m == nil || m.anomalies == nil {
		return
	}
	m.anomalies.WithLabelValues(kind, severity).Inc()
}

func (m *JobMetrics) IncPlacementEmpty() {
	if m == nil || m.placementEmpty == nil {
		return
	}
	m.placementEmpty.Inc()
}

func (m *JobMetrics) IncPlacementPlaced() {
	if m == nil || m.placementPlaced == nil {
		return
	}
	m.placementPlaced.Inc()
}

// ClassifyJobError maps an error to a low-cardinality reason label.
func ClassifyJobError(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return JobReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrInvalidTransaction):
		return JobReasonDB
	default:
		return JobReasonUnknown
	}
}
