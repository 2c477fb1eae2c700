package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/billing/domain"
	"github.com/openfoodhub/foodhub/internal/clock"
	"github.com/openfoodhub/foodhub/internal/config"
	"github.com/openfoodhub/foodhub/internal/diagnostics"
	enterprisedomain "github.com/openfoodhub/foodhub/internal/enterprise/domain"
	invoicedomain "github.com/openfoodhub/foodhub/internal/invoice/domain"
	obsmetrics "github.com/openfoodhub/foodhub/internal/observability/metrics"
	orderdomain "github.com/openfoodhub/foodhub/internal/order/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("billing service missing required dependencies")

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Market         *config.MarketConfigHolder
	EnterpriseRepo enterprisedomain.Repository
	Diagnostics    diagnostics.Reporter
}

// Service splits enterprise billing history into billable periods.
type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	market         *config.MarketConfigHolder
	enterpriseRepo enterprisedomain.Repository
	diag           diagnostics.Reporter
}

func New(p Params) (domain.Service, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Market == nil || p.EnterpriseRepo == nil || p.Diagnostics == nil {
		return nil, ErrInvalidConfig
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("billing").With(zap.String("component", "billable_periods")),
		genID:          p.GenID,
		clock:          p.Clock,
		market:         p.Market,
		enterpriseRepo: p.EnterpriseRepo,
		diag:           p.Diagnostics,
	}, nil
}

// monthCloseoutGraceDays keeps the splitter finishing the just-closed month
// during the first days of a new one before attention moves on.
const monthCloseoutGraceDays = 3

func (s *Service) RunCurrent(ctx context.Context) error {
	now := s.clock.Now()
	target := now
	if now.Day() <= monthCloseoutGraceDays {
		target = now.AddDate(0, 0, -now.Day())
	}
	return s.Run(ctx, target.Year(), target.Month())
}

func (s *Service) Run(ctx context.Context, year int, month time.Month) error {
	cfg := s.market.Get()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("market config: %w", err)
	}

	now := s.clock.Now()
	rangeStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := rangeStart.AddDate(0, 1, 0)
	if rangeEnd.After(now) {
		rangeEnd = now
	}
	if !rangeStart.Before(rangeEnd) {
		return fmt.Errorf("%w: [%s, %s)", domain.ErrInvalidWindow, rangeStart.Format(time.RFC3339), rangeEnd.Format(time.RFC3339))
	}
	runStart := now

	enterprises, err := s.enterpriseRepo.List(ctx, s.db)
	if err != nil {
		return fmt.Errorf("list enterprises: %w", err)
	}

	var jobErr error
	var failed []snowflake.ID
	for _, ent := range enterprises {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.splitEnterprise(ctx, ent, rangeStart, rangeEnd, cfg); err != nil {
			failed = append(failed, ent.ID)
			jobErr = errors.Join(jobErr, fmt.Errorf("enterprise %s: %w", ent.ID, err))
			s.log.Error("billable period split failed",
				zap.String("enterprise_id", ent.ID.String()),
				zap.Error(err),
			)
		}
	}

	if err := s.cleanupStale(ctx, rangeStart, rangeEnd, runStart, failed); err != nil {
		jobErr = errors.Join(jobErr, err)
	}

	return jobErr
}

// splitEnterprise produces the leaf intervals for one enterprise and upserts
// them. The window is clamped to the enterprise's creation time.
func (s *Service) splitEnterprise(ctx context.Context, ent enterprisedomain.Enterprise, rangeStart, rangeEnd time.Time, cfg config.MarketConfig) error {
	from := rangeStart
	if ent.CreatedAt.After(from) {
		from = ent.CreatedAt.UTC()
	}
	if !from.Before(rangeEnd) {
		return nil
	}

	orderCount, err := s.completedOrderCount(ctx, ent.ID, from, rangeEnd)
	if err != nil {
		return err
	}
	periodCount, err := s.livePeriodCount(ctx, ent.ID, from, rangeEnd)
	if err != nil {
		return err
	}
	// No orders and no prior periods in the window: nothing to bill.
	if orderCount == 0 && periodCount == 0 {
		return nil
	}

	versions, err := s.enterpriseRepo.VersionsWithin(ctx, s.db, ent.ID, from, rangeEnd)
	if err != nil {
		return err
	}
	trialStart, trialExpiry := ent.TrialWindow(cfg.TrialLengthDays)
	leaves := splitWindow(from, rangeEnd, versions, ent.OwnerID, ent.Sells, trialStart, trialExpiry)

	now := s.clock.Now()
	for _, leaf := range leaves {
		turnover, err := s.turnover(ctx, ent.ID, leaf.BeginsAt, leaf.EndsAt)
		if err != nil {
			return err
		}
		if err := s.upsertPeriod(ctx, ent.ID, leaf, turnover, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) completedOrderCount(ctx context.Context, enterpriseID snowflake.ID, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("enterprise_id = ? AND state = ? AND completed_at >= ? AND completed_at < ?",
			enterpriseID, orderdomain.StateComplete, from, to).
		Count(&count).Error
	return count, err
}

func (s *Service) livePeriodCount(ctx context.Context, enterpriseID snowflake.ID, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.BillablePeriod{}).
		Where("enterprise_id = ? AND begins_at < ? AND ends_at > ?", enterpriseID, to, from).
		Count(&count).Error
	return count, err
}

// turnover sums completed order totals inside [from, to).
func (s *Service) turnover(ctx context.Context, enterpriseID snowflake.ID, from, to time.Time) (decimal.Decimal, error) {
	var raw *string
	err := s.db.WithContext(ctx).Raw(
		`SELECT SUM(total)
		 FROM orders
		 WHERE enterprise_id = ? AND state = ? AND completed_at >= ? AND completed_at < ?`,
		enterpriseID,
		orderdomain.StateComplete,
		from,
		to,
	).Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

// upsertPeriod creates or updates the period keyed by (enterprise, begins_at).
// updated_at is touched even when nothing changed so staleness cleanup does
// not treat a still-valid period as abandoned. A tombstone left at the same
// begins_at by an earlier cleanup is resurrected rather than duplicated, so
// the key stays unique among live rows.
func (s *Service) upsertPeriod(ctx context.Context, enterpriseID snowflake.ID, leaf Interval, turnover decimal.Decimal, now time.Time) error {
	var existing domain.BillablePeriod
	err := s.db.WithContext(ctx).
		Where("enterprise_id = ? AND begins_at = ?", enterpriseID, leaf.BeginsAt).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).Unscoped().
			Where("enterprise_id = ? AND begins_at = ?", enterpriseID, leaf.BeginsAt).
			Order("id DESC").
			First(&existing).Error
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		period := domain.BillablePeriod{
			ID:           s.genID.Generate(),
			EnterpriseID: enterpriseID,
			OwnerID:      leaf.OwnerID,
			BeginsAt:     leaf.BeginsAt,
			EndsAt:       leaf.EndsAt,
			Sells:        leaf.Sells,
			Trial:        leaf.Trial,
			Turnover:     turnover,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.db.WithContext(ctx).Create(&period).Error
	case err != nil:
		return err
	}

	return s.db.WithContext(ctx).Unscoped().
		Model(&domain.BillablePeriod{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"owner_id":   leaf.OwnerID,
			"ends_at":    leaf.EndsAt,
			"sells":      leaf.Sells,
			"trial":      leaf.Trial,
			"turnover":   turnover,
			"updated_at": now,
			"deleted_at": nil,
		}).Error
}

// cleanupStale soft-deletes periods this run did not touch whose interval
// lies strictly inside the processed range. Periods touching either boundary
// are kept, as are periods of enterprises whose split failed this run: those
// stay in their prior state for the next sweep. Periods backed by a finalized
// invoice with a completed order are never deleted; they are surfaced as
// integrity anomalies instead.
func (s *Service) cleanupStale(ctx context.Context, rangeStart, rangeEnd, runStart time.Time, skipEnterprises []snowflake.ID) error {
	query := s.db.WithContext(ctx).
		Where("updated_at < ? AND begins_at >= ? AND ends_at <= ? AND begins_at <> ? AND ends_at <> ?",
			runStart, rangeStart, rangeEnd, rangeEnd, rangeStart)
	if len(skipEnterprises) > 0 {
		query = query.Where("enterprise_id NOT IN ?", skipEnterprises)
	}
	var stale []domain.BillablePeriod
	err := query.Find(&stale).Error
	if err != nil {
		return fmt.Errorf("find stale periods: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	deleted := 0
	var jobErr error
	for _, period := range stale {
		protected, err := s.hasFinalizedInvoice(ctx, period.ID)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if protected {
			obsmetrics.Jobs().IncStalePeriod(obsmetrics.StalePeriodOutcomeProtected)
			s.diag.Bug("billable_period_integrity",
				"stale billable period linked to finalized invoice but untouched this run",
				zap.String("billable_period_id", period.ID.String()),
				zap.String("enterprise_id", period.EnterpriseID.String()),
				zap.Time("begins_at", period.BeginsAt),
				zap.Time("ends_at", period.EndsAt),
			)
			continue
		}
		if err := s.db.WithContext(ctx).Delete(&domain.BillablePeriod{}, "id = ?", period.ID).Error; err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		obsmetrics.Jobs().IncStalePeriod(obsmetrics.StalePeriodOutcomeDeleted)
		deleted++
	}

	if deleted > 0 {
		s.diag.Warn("billable_period_stale",
			"soft-deleted stale billable periods",
			zap.Int("deleted", deleted),
			zap.Time("range_start", rangeStart),
			zap.Time("range_end", rangeEnd),
		)
	}
	return jobErr
}

func (s *Service) hasFinalizedInvoice(ctx context.Context, periodID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM invoices i
		 JOIN orders o ON o.id = i.order_id
		 WHERE i.billable_period_id = ? AND i.state = ? AND o.state = ?`,
		periodID,
		invoicedomain.InvoiceStateFinalized,
		orderdomain.StateComplete,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
