package domain

import (
	"context"
	"time"
)

// Service recomputes billable periods for enterprises.
type Service interface {
	// Run processes the given calendar month (UTC), bounded above by now
	// when the month is still in progress.
	Run(ctx context.Context, year int, month time.Month) error
	// RunCurrent processes the month containing now, or the previous month
	// during the first few days of a new one.
	RunCurrent(ctx context.Context) error
}
