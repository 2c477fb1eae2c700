package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderCycleOpenAt(t *testing.T) {
	open := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	closeAt := open.Add(72 * time.Hour)
	c := OrderCycle{OrdersOpenAt: open, OrdersCloseAt: closeAt}

	assert.True(t, c.OpenAt(open), "open boundary is inclusive")
	assert.True(t, c.OpenAt(closeAt.Add(-time.Second)))
	assert.False(t, c.OpenAt(closeAt), "close boundary is exclusive")
	assert.False(t, c.OpenAt(open.Add(-time.Second)))
}

func TestOrderCycleClosedWithin(t *testing.T) {
	closeAt := time.Date(2026, time.May, 4, 0, 0, 0, 0, time.UTC)
	c := OrderCycle{OrdersCloseAt: closeAt}

	assert.True(t, c.ClosedWithin(closeAt, time.Hour))
	assert.True(t, c.ClosedWithin(closeAt.Add(30*time.Minute), time.Hour))
	assert.False(t, c.ClosedWithin(closeAt.Add(2*time.Hour), time.Hour), "closed too long ago")
	assert.False(t, c.ClosedWithin(closeAt.Add(-time.Second), time.Hour), "not closed yet")
}

func TestVariantCap(t *testing.T) {
	stocked := Variant{OnHand: 3, Tracked: true}
	assert.Equal(t, 2, stocked.Cap(2))
	assert.Equal(t, 3, stocked.Cap(5), "capped at on hand")
	assert.Equal(t, 0, stocked.Cap(0))
	assert.Equal(t, 0, stocked.Cap(-1))

	oversold := Variant{OnHand: -4, Tracked: true}
	assert.Equal(t, 0, oversold.Cap(5), "negative stock floors at zero")

	onDemand := Variant{OnHand: 0, OnDemand: true}
	assert.Equal(t, 9, onDemand.Cap(9), "on-demand variants never cap")
}
