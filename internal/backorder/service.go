package backorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/openfoodhub/foodhub/internal/clock"
	"github.com/openfoodhub/foodhub/internal/config"
	obsmetrics "github.com/openfoodhub/foodhub/internal/observability/metrics"
	ordercycledomain "github.com/openfoodhub/foodhub/internal/ordercycle/domain"
	"github.com/openfoodhub/foodhub/pkg/db"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxSendAttempts = 8
	cycleLookback   = 24 * time.Hour
)

var ErrCatalogURLMissing = errors.New("market.catalogUrl is not configured")

// Service collects oversold variants into backorders and ships them to the
// producer catalog endpoint.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	market    *config.MarketConfigHolder
	cycleRepo ordercycledomain.Repository
	client    *retryablehttp.Client
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Market    *config.MarketConfigHolder
	CycleRepo ordercycledomain.Repository
}

func New(p Params) *Service {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("backorder"),
		genID:     p.GenID,
		clock:     p.Clock,
		market:    p.Market,
		cycleRepo: p.CycleRepo,
		client:    client,
	}
}

// Run collects oversold lines for recently closed cycles and delivers any
// pending backorders.
func (s *Service) Run(ctx context.Context) error {
	return errors.Join(s.Collect(ctx), s.SendPending(ctx))
}

// oversoldLine is one variant of one producer owed quantity beyond stock.
type oversoldLine struct {
	ProducerID snowflake.ID
	VariantID  snowflake.ID
	SKU        string
	Quantity   int
}

// Collect scans completed orders of cycles that closed recently for line
// items whose tracked variant ended up with negative stock, and writes one
// pending backorder per producer per cycle. A row that already exists is
// left alone.
func (s *Service) Collect(ctx context.Context) error {
	now := s.clock.Now()
	cycles, err := s.cycleRepo.CyclesClosedWithin(ctx, s.db, now, cycleLookback)
	if err != nil {
		return fmt.Errorf("closed cycles: %w", err)
	}

	var jobErr error
	for _, cycle := range cycles {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.collectCycle(ctx, cycle.ID); err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("cycle %s: %w", cycle.ID, err))
		}
	}
	return jobErr
}

func (s *Service) collectCycle(ctx context.Context, cycleID snowflake.ID) error {
	var lines []oversoldLine
	err := s.db.WithContext(ctx).Raw(`
		SELECT v.producer_id AS producer_id,
		       v.id AS variant_id,
		       v.sku AS sku,
		       SUM(li.quantity) AS quantity
		FROM line_items li
		JOIN orders o ON o.id = li.order_id
		JOIN variants v ON v.id = li.variant_id
		WHERE o.order_cycle_id = ?
		  AND o.state = 'complete'
		  AND v.tracked = true
		  AND v.on_demand = false
		  AND v.on_hand < 0
		GROUP BY v.producer_id, v.id, v.sku`,
		cycleID,
	).Scan(&lines).Error
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	byProducer := lo.GroupBy(lines, func(l oversoldLine) snowflake.ID { return l.ProducerID })

	var jobErr error
	for producerID, producerLines := range byProducer {
		payload := datatypes.JSONMap{}
		for _, l := range producerLines {
			payload[l.VariantID.String()] = map[string]any{
				"sku":      l.SKU,
				"quantity": l.Quantity,
			}
		}
		row := Backorder{
			ID:           s.genID.Generate(),
			ProducerID:   producerID,
			OrderCycleID: cycleID,
			Lines:        payload,
			State:        StatePending,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			jobErr = errors.Join(jobErr, err)
			continue
		}
		s.log.Info("backorder collected",
			zap.String("order_cycle_id", cycleID.String()),
			zap.String("producer_id", producerID.String()),
			zap.Int("variants", len(producerLines)),
		)
	}
	return jobErr
}

type catalogPayload struct {
	ID           string         `json:"id"`
	ProducerID   string         `json:"producer_id"`
	OrderCycleID string         `json:"order_cycle_id"`
	Lines        map[string]any `json:"lines"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SendPending posts pending backorders to the catalog endpoint oldest
// first. A row that exhausts its attempts is marked failed and kept for
// operator inspection.
func (s *Service) SendPending(ctx context.Context) error {
	catalogURL := s.market.Get().CatalogURL
	if catalogURL == "" {
		return ErrCatalogURLMissing
	}

	var pending []Backorder
	err := s.db.WithContext(ctx).
		Where("state = ?", StatePending).
		Order("id").
		Find(&pending).Error
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var jobErr error
	for _, row := range pending {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.send(ctx, catalogURL, row); err != nil {
			jobErr = errors.Join(jobErr, err)
			obsmetrics.Jobs().IncBackorder("failed")
			updates := map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": err.Error(),
			}
			if row.Attempts+1 >= maxSendAttempts {
				updates["state"] = StateFailed
			}
			if updateErr := s.db.WithContext(ctx).Model(&Backorder{}).
				Where("id = ?", row.ID).
				Updates(updates).Error; updateErr != nil {
				jobErr = errors.Join(jobErr, updateErr)
			}
			continue
		}
		obsmetrics.Jobs().IncBackorder("sent")
		if updateErr := s.db.WithContext(ctx).Model(&Backorder{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"state":      StateSent,
				"sent_at":    now,
				"last_error": nil,
			}).Error; updateErr != nil {
			jobErr = errors.Join(jobErr, updateErr)
		}
	}
	return jobErr
}

func (s *Service) send(ctx context.Context, catalogURL string, row Backorder) error {
	body := catalogPayload{
		ID:           row.ID.String(),
		ProducerID:   row.ProducerID.String(),
		OrderCycleID: row.OrderCycleID.String(),
		Lines:        row.Lines,
		CreatedAt:    row.CreatedAt,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", catalogURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("catalog endpoint returned %d for %s", resp.StatusCode, row.ID)
	}
	s.log.Debug("backorder sent",
		zap.String("backorder_id", row.ID.String()),
		zap.String("producer_id", row.ProducerID.String()),
	)
	return nil
}
