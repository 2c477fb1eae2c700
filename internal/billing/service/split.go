package service

import (
	"time"

	"github.com/bwmarrin/snowflake"
	enterprisedomain "github.com/openfoodhub/foodhub/internal/enterprise/domain"
)

// Interval is one candidate billable period before turnover aggregation.
type Interval struct {
	BeginsAt time.Time
	EndsAt   time.Time
	OwnerID  snowflake.ID
	Sells    enterprisedomain.Sells
	Trial    bool
}

func (iv Interval) empty() bool {
	return !iv.BeginsAt.Before(iv.EndsAt)
}

// versionIntervals partitions [from, to) at every attribute-version change
// point. Each version row holds the values the enterprise carried up to its
// RecordedAt, so the tail interval takes the enterprise's current values.
// Versions recorded outside the window must already be filtered out by the
// caller's query. Empty slices yield the whole window with current values.
func versionIntervals(from, to time.Time, versions []enterprisedomain.EnterpriseVersion, currentOwner snowflake.ID, currentSells enterprisedomain.Sells) []Interval {
	intervals := make([]Interval, 0, len(versions)+1)
	cursor := from
	for _, v := range versions {
		iv := Interval{
			BeginsAt: cursor,
			EndsAt:   v.RecordedAt,
			OwnerID:  v.OwnerID,
			Sells:    v.Sells,
		}
		if !iv.empty() {
			intervals = append(intervals, iv)
		}
		cursor = v.RecordedAt
	}
	tail := Interval{
		BeginsAt: cursor,
		EndsAt:   to,
		OwnerID:  currentOwner,
		Sells:    currentSells,
	}
	if !tail.empty() {
		intervals = append(intervals, tail)
	}
	return intervals
}

// splitTrial splits one version interval at the trial window boundaries,
// yielding at most three leaves in chronological order. A trial window that
// only touches an endpoint does not split. A nil trial start or expiry means
// the whole interval is non-trial.
func splitTrial(iv Interval, trialStart, trialExpiry *time.Time) []Interval {
	if trialStart == nil || trialExpiry == nil {
		return []Interval{iv}
	}

	overlapStart := maxTime(iv.BeginsAt, *trialStart)
	overlapEnd := minTime(iv.EndsAt, *trialExpiry)
	if !overlapStart.Before(overlapEnd) {
		return []Interval{iv}
	}

	leaves := make([]Interval, 0, 3)
	if iv.BeginsAt.Before(overlapStart) {
		head := iv
		head.EndsAt = overlapStart
		leaves = append(leaves, head)
	}
	trial := iv
	trial.BeginsAt = overlapStart
	trial.EndsAt = overlapEnd
	trial.Trial = true
	leaves = append(leaves, trial)
	if overlapEnd.Before(iv.EndsAt) {
		tail := iv
		tail.BeginsAt = overlapEnd
		leaves = append(leaves, tail)
	}
	return leaves
}

// splitWindow runs the full partition: version boundaries first, then trial
// boundaries inside each version interval.
func splitWindow(from, to time.Time, versions []enterprisedomain.EnterpriseVersion, currentOwner snowflake.ID, currentSells enterprisedomain.Sells, trialStart, trialExpiry *time.Time) []Interval {
	var leaves []Interval
	for _, iv := range versionIntervals(from, to, versions, currentOwner, currentSells) {
		leaves = append(leaves, splitTrial(iv, trialStart, trialExpiry)...)
	}
	return leaves
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
