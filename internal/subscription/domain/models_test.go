package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionRunnable(t *testing.T) {
	now := time.Now().UTC()

	assert.True(t, Subscription{}.Runnable())
	assert.False(t, Subscription{PausedAt: &now}.Runnable())
	assert.False(t, Subscription{CanceledAt: &now}.Runnable())
}

func TestSubscriptionCovers(t *testing.T) {
	closeAt := time.Date(2026, time.May, 4, 0, 0, 0, 0, time.UTC)

	open := Subscription{BeginsAt: closeAt.AddDate(0, -1, 0)}
	assert.True(t, open.Covers(closeAt))

	startsAtClose := Subscription{BeginsAt: closeAt}
	assert.True(t, startsAtClose.Covers(closeAt))

	startsLater := Subscription{BeginsAt: closeAt.Add(time.Second)}
	assert.False(t, startsLater.Covers(closeAt))

	endsBefore := closeAt.Add(-time.Hour)
	assert.False(t, Subscription{BeginsAt: closeAt.AddDate(0, -1, 0), EndsAt: &endsBefore}.Covers(closeAt))

	endsAtClose := closeAt
	assert.False(t, Subscription{BeginsAt: closeAt.AddDate(0, -1, 0), EndsAt: &endsAtClose}.Covers(closeAt),
		"a subscription ending exactly at close does not cover the cycle")
}
