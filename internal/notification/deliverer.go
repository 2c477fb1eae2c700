package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/openfoodhub/foodhub/internal/config"
	obsmetrics "github.com/openfoodhub/foodhub/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDeliveryAttempts = 8

var ErrNotifyURLMissing = errors.New("market.notifyUrl is not configured")

// Deliverer posts pending outbox rows to the configured endpoint.
type Deliverer struct {
	db     *gorm.DB
	log    *zap.Logger
	client *retryablehttp.Client
	market *config.MarketConfigHolder
}

func NewDeliverer(db *gorm.DB, log *zap.Logger, market *config.MarketConfigHolder) *Deliverer {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	return &Deliverer{
		db:     db,
		log:    log.Named("notification"),
		client: client,
		market: market,
	}
}

type payload struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	OrderID      string         `json:"order_id"`
	ProxyOrderID string         `json:"proxy_order_id,omitempty"`
	Changes      map[string]any `json:"changes,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DeliverPending sends undelivered notifications oldest first. A row that
// exhausts its attempts stays in the outbox with its last error for
// operator inspection.
func (d *Deliverer) DeliverPending(ctx context.Context, limit int) error {
	notifyURL := d.market.Get().NotifyURL
	if notifyURL == "" {
		return ErrNotifyURLMissing
	}

	var pending []Notification
	err := d.db.WithContext(ctx).
		Where("delivered_at IS NULL AND attempts < ?", maxDeliveryAttempts).
		Order("id").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return err
	}

	var jobErr error
	for _, row := range pending {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := d.deliver(ctx, notifyURL, row); err != nil {
			jobErr = errors.Join(jobErr, err)
			obsmetrics.Jobs().IncNotification(string(row.Kind), "failed")
			msg := err.Error()
			if updateErr := d.db.WithContext(ctx).Model(&Notification{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{
					"attempts":   gorm.Expr("attempts + 1"),
					"last_error": msg,
				}).Error; updateErr != nil {
				jobErr = errors.Join(jobErr, updateErr)
			}
			continue
		}
		obsmetrics.Jobs().IncNotification(string(row.Kind), "delivered")
		now := time.Now().UTC()
		if updateErr := d.db.WithContext(ctx).Model(&Notification{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"attempts":     gorm.Expr("attempts + 1"),
				"delivered_at": now,
				"last_error":   nil,
			}).Error; updateErr != nil {
			jobErr = errors.Join(jobErr, updateErr)
		}
	}
	return jobErr
}

func (d *Deliverer) deliver(ctx context.Context, notifyURL string, row Notification) error {
	body := payload{
		ID:        row.ID.String(),
		Kind:      row.Kind,
		OrderID:   row.OrderID.String(),
		Changes:   row.Changes,
		CreatedAt: row.CreatedAt,
	}
	if row.ProxyOrderID != nil {
		body.ProxyOrderID = row.ProxyOrderID.String()
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", notifyURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", uuid.NewString())

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint returned %d for %s", resp.StatusCode, row.ID)
	}
	d.log.Debug("notification delivered",
		zap.String("notification_id", row.ID.String()),
		zap.String("kind", string(row.Kind)),
	)
	return nil
}
