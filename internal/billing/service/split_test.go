package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	enterprisedomain "github.com/openfoodhub/foodhub/internal/enterprise/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func assertContiguous(t *testing.T, from, to time.Time, leaves []Interval) {
	t.Helper()
	require.NotEmpty(t, leaves)
	assert.True(t, leaves[0].BeginsAt.Equal(from), "first leaf must start the window")
	assert.True(t, leaves[len(leaves)-1].EndsAt.Equal(to), "last leaf must end the window")
	for i := 1; i < len(leaves); i++ {
		assert.True(t, leaves[i].BeginsAt.Equal(leaves[i-1].EndsAt),
			"leaf %d must start where leaf %d ends", i, i-1)
	}
	for _, leaf := range leaves {
		assert.True(t, leaf.BeginsAt.Before(leaf.EndsAt), "no empty leaves")
	}
}

func TestVersionIntervals_NoVersions(t *testing.T) {
	owner := snowflake.ID(42)
	got := versionIntervals(day(1), day(31), nil, owner, enterprisedomain.SellsAny)

	require.Len(t, got, 1)
	assert.True(t, got[0].BeginsAt.Equal(day(1)))
	assert.True(t, got[0].EndsAt.Equal(day(31)))
	assert.Equal(t, owner, got[0].OwnerID)
	assert.Equal(t, enterprisedomain.SellsAny, got[0].Sells)
}

func TestVersionIntervals_PartitionsAtChangePoints(t *testing.T) {
	oldOwner := snowflake.ID(1)
	newOwner := snowflake.ID(2)
	versions := []enterprisedomain.EnterpriseVersion{
		{EnterpriseID: 7, OwnerID: oldOwner, Sells: enterprisedomain.SellsOwn, RecordedAt: day(10)},
		{EnterpriseID: 7, OwnerID: oldOwner, Sells: enterprisedomain.SellsAny, RecordedAt: day(20)},
	}

	got := versionIntervals(day(1), day(31), versions, newOwner, enterprisedomain.SellsNone)

	require.Len(t, got, 3)
	assertContiguous(t, day(1), day(31), got)
	// Each version row carries the values held up to its recorded_at.
	assert.Equal(t, enterprisedomain.SellsOwn, got[0].Sells)
	assert.Equal(t, oldOwner, got[0].OwnerID)
	assert.Equal(t, enterprisedomain.SellsAny, got[1].Sells)
	// The tail takes the enterprise's current values.
	assert.Equal(t, enterprisedomain.SellsNone, got[2].Sells)
	assert.Equal(t, newOwner, got[2].OwnerID)
}

func TestVersionIntervals_VersionAtWindowEdgeYieldsNoEmptyLeaf(t *testing.T) {
	versions := []enterprisedomain.EnterpriseVersion{
		{OwnerID: 1, Sells: enterprisedomain.SellsOwn, RecordedAt: day(1)},
		{OwnerID: 1, Sells: enterprisedomain.SellsAny, RecordedAt: day(31)},
	}

	got := versionIntervals(day(1), day(31), versions, 2, enterprisedomain.SellsNone)

	require.Len(t, got, 1)
	assert.Equal(t, enterprisedomain.SellsAny, got[0].Sells)
	assertContiguous(t, day(1), day(31), got)
}

func TestSplitTrial_NoTrialWindow(t *testing.T) {
	iv := Interval{BeginsAt: day(1), EndsAt: day(31)}

	got := splitTrial(iv, nil, nil)

	require.Len(t, got, 1)
	assert.False(t, got[0].Trial)
}

func TestSplitTrial_TrialInsideIntervalYieldsThreeLeaves(t *testing.T) {
	iv := Interval{BeginsAt: day(1), EndsAt: day(31), OwnerID: 5, Sells: enterprisedomain.SellsAny}
	start, expiry := day(10), day(20)

	got := splitTrial(iv, &start, &expiry)

	require.Len(t, got, 3)
	assertContiguous(t, day(1), day(31), got)
	assert.False(t, got[0].Trial)
	assert.True(t, got[1].Trial)
	assert.False(t, got[2].Trial)
	// Attribute values survive the split.
	for _, leaf := range got {
		assert.Equal(t, snowflake.ID(5), leaf.OwnerID)
		assert.Equal(t, enterprisedomain.SellsAny, leaf.Sells)
	}
}

func TestSplitTrial_TrialCoversInterval(t *testing.T) {
	iv := Interval{BeginsAt: day(10), EndsAt: day(20)}
	start, expiry := day(1), day(31)

	got := splitTrial(iv, &start, &expiry)

	require.Len(t, got, 1)
	assert.True(t, got[0].Trial)
	assertContiguous(t, day(10), day(20), got)
}

func TestSplitTrial_EndpointTouchDoesNotSplit(t *testing.T) {
	iv := Interval{BeginsAt: day(10), EndsAt: day(20)}

	// Trial ends exactly where the interval starts.
	start, expiry := day(1), day(10)
	got := splitTrial(iv, &start, &expiry)
	require.Len(t, got, 1)
	assert.False(t, got[0].Trial)

	// Trial starts exactly where the interval ends.
	start, expiry = day(20), day(25)
	got = splitTrial(iv, &start, &expiry)
	require.Len(t, got, 1)
	assert.False(t, got[0].Trial)
}

func TestSplitWindow_VersionAndTrialBoundariesCompose(t *testing.T) {
	versions := []enterprisedomain.EnterpriseVersion{
		{OwnerID: 1, Sells: enterprisedomain.SellsOwn, RecordedAt: day(15)},
	}
	start, expiry := day(10), day(20)

	got := splitWindow(day(1), day(31), versions, 2, enterprisedomain.SellsAny, &start, &expiry)

	// [1,10) own, [10,15) own trial, [15,20) any trial, [20,31) any
	require.Len(t, got, 4)
	assertContiguous(t, day(1), day(31), got)
	assert.False(t, got[0].Trial)
	assert.True(t, got[1].Trial)
	assert.True(t, got[2].Trial)
	assert.False(t, got[3].Trial)
	assert.Equal(t, enterprisedomain.SellsOwn, got[1].Sells)
	assert.Equal(t, enterprisedomain.SellsAny, got[2].Sells)
}

func TestSplitWindow_EachVersionIntervalSplitsAtMostThrice(t *testing.T) {
	start, expiry := day(5), day(25)
	got := splitWindow(day(1), day(31), nil, 1, enterprisedomain.SellsAny, &start, &expiry)
	assert.LessOrEqual(t, len(got), 3)
	assertContiguous(t, day(1), day(31), got)
}
