package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/openfoodhub/foodhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOutboxTest(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Notification{}))
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return db, node
}

func TestDeliverPending_PostsPayloadAndMarksDelivered(t *testing.T) {
	db, node := setupOutboxTest(t)

	var got payload
	var deliveryID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveryID = r.Header.Get("X-Delivery-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outbox := NewOutbox(node)
	orderID := node.Generate()
	proxyOrderID := node.Generate()
	changes := map[snowflake.ID]int{node.Generate(): 2}
	require.NoError(t, outbox.Enqueue(context.Background(), db, KindPlacementSuccess, orderID, &proxyOrderID, changes, time.Now()))

	d := NewDeliverer(db, zap.NewNop(), config.NewStaticMarketConfigHolder(config.MarketConfig{NotifyURL: srv.URL}))
	require.NoError(t, d.DeliverPending(context.Background(), 10))

	assert.Equal(t, KindPlacementSuccess, got.Kind)
	assert.Equal(t, orderID.String(), got.OrderID)
	assert.Equal(t, proxyOrderID.String(), got.ProxyOrderID)
	assert.NotEmpty(t, got.Changes)
	assert.NotEmpty(t, deliveryID)

	var row Notification
	require.NoError(t, db.First(&row).Error)
	assert.NotNil(t, row.DeliveredAt)
	assert.Equal(t, 1, row.Attempts)
	assert.Nil(t, row.LastError)
}

func TestDeliverPending_FailureRecordsErrorAndRetriesLater(t *testing.T) {
	db, node := setupOutboxTest(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	outbox := NewOutbox(node)
	require.NoError(t, outbox.Enqueue(context.Background(), db, KindPlacementEmpty, node.Generate(), nil, nil, time.Now()))

	d := NewDeliverer(db, zap.NewNop(), config.NewStaticMarketConfigHolder(config.MarketConfig{NotifyURL: srv.URL}))
	err := d.DeliverPending(context.Background(), 10)
	require.Error(t, err)

	var row Notification
	require.NoError(t, db.First(&row).Error)
	assert.Nil(t, row.DeliveredAt)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "400")
}

func TestDeliverPending_ExhaustedRowsAreLeftForInspection(t *testing.T) {
	db, node := setupOutboxTest(t)

	outbox := NewOutbox(node)
	require.NoError(t, outbox.Enqueue(context.Background(), db, KindPlacementEmpty, node.Generate(), nil, nil, time.Now()))
	require.NoError(t, db.Model(&Notification{}).
		Where("1 = 1").
		Update("attempts", maxDeliveryAttempts).Error)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(db, zap.NewNop(), config.NewStaticMarketConfigHolder(config.MarketConfig{NotifyURL: srv.URL}))
	require.NoError(t, d.DeliverPending(context.Background(), 10))
	assert.EqualValues(t, 0, hits.Load(), "exhausted rows are not retried")
}

func TestDeliverPending_MissingURLIsConfigError(t *testing.T) {
	db, _ := setupOutboxTest(t)

	d := NewDeliverer(db, zap.NewNop(), config.NewStaticMarketConfigHolder(config.MarketConfig{}))
	err := d.DeliverPending(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotifyURLMissing)
}
