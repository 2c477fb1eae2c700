// Package diagnostics is the operator-facing sink for non-fatal anomalies.
// Nothing reported here is ever customer-visible.
package diagnostics

import (
	obsmetrics "github.com/openfoodhub/foodhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	SeverityWarning = "warning"
	SeverityBug     = "bug"
)

// Reporter surfaces operational anomalies to monitoring.
type Reporter interface {
	// Warn records a recoverable anomaly (e.g. stale periods soft-deleted).
	Warn(kind, msg string, fields ...zap.Field)
	// Bug records a data-integrity anomaly that must never be silently resolved.
	Bug(kind, msg string, fields ...zap.Field)
}

type reporter struct {
	log *zap.Logger
}

func New(log *zap.Logger) Reporter {
	return &reporter{log: log.Named("diagnostics")}
}

func (r *reporter) Warn(kind, msg string, fields ...zap.Field) {
	obsmetrics.Jobs().IncAnomaly(kind, SeverityWarning)
	r.log.Warn(msg, append([]zap.Field{zap.String("kind", kind)}, fields...)...)
}

func (r *reporter) Bug(kind, msg string, fields ...zap.Field) {
	obsmetrics.Jobs().IncAnomaly(kind, SeverityBug)
	r.log.Error(msg, append([]zap.Field{zap.String("kind", kind)}, fields...)...)
}

var Module = fx.Module("diagnostics",
	fx.Provide(New),
)
