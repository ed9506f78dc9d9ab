package milestones

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/ringbuf"
)

// DeliveryEvent is one completed delivery as seen by the tracker.
type DeliveryEvent struct {
	AgentID  uuid.UUID
	OrderID  uuid.UUID
	OnTime   bool
	Earnings decimal.Decimal
	At       time.Time
}

// syncLevels adds an entry for every reward the agent has not seen yet. The
// first level starts in progress; any other level starts in progress only when
// the level before it is already done.
func syncLevels(levels []models.MilestoneLevelProgress, rewards []models.MilestoneReward) []models.MilestoneLevelProgress {
	if levels == nil {
		levels = []models.MilestoneLevelProgress{}
	}
	known := make(map[uuid.UUID]bool, len(levels))
	for _, lvl := range levels {
		known[lvl.MilestoneID] = true
	}
	for _, reward := range rewards {
		if known[reward.ID] {
			continue
		}
		levels = append(levels, models.MilestoneLevelProgress{
			MilestoneID: reward.ID,
			Level:       reward.Level,
			Counters:    models.MilestoneCounters{TotalEarnings: decimal.Zero},
			Status:      enums.MilestoneLocked,
			History:     ringbuf.New[models.MilestoneHistoryEntry](models.MilestoneHistoryCapacity),
		})
	}
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	for i := range levels {
		if levels[i].History.Cap() == 0 {
			levels[i].History = levels[i].History.WithCapacity(models.MilestoneHistoryCapacity)
		}
		if levels[i].Status == enums.MilestoneLocked && (i == 0 || levels[i-1].Status.Unlocks()) {
			levels[i].Status = enums.MilestoneInProgress
		}
	}
	return levels
}

// apply feeds one delivery into the levels and returns the indexes of levels
// the event completed. Eligibility is decided before any level changes, so a
// level unlocked by this event does not count it.
func apply(levels []models.MilestoneLevelProgress, rewards map[uuid.UUID]models.MilestoneReward, ev DeliveryEvent) []int {
	eligible := make([]bool, len(levels))
	for i, lvl := range levels {
		if lvl.Status.Unlocks() || lvl.Status == enums.MilestoneLocked {
			continue
		}
		if i == 0 || levels[i-1].Status.Unlocks() {
			eligible[i] = true
		}
	}

	onTime := int64(0)
	if ev.OnTime {
		onTime = 1
	}

	var completed []int
	for i := range levels {
		if !eligible[i] {
			continue
		}
		lvl := &levels[i]
		lvl.Counters.TotalDeliveries++
		lvl.Counters.OnTimeDeliveries += onTime
		lvl.Counters.TotalEarnings = lvl.Counters.TotalEarnings.Add(ev.Earnings)

		reward, ok := rewards[lvl.MilestoneID]
		if ok {
			lvl.OverallProgress = overallProgress(lvl.Counters, reward.Conditions)
		}
		if ok && targetsMet(lvl.Counters, reward.Conditions) {
			lvl.OverallProgress = 100
			lvl.Status = enums.MilestoneCompleted
			at := ev.At
			lvl.CompletedAt = &at
			completed = append(completed, i)
		}
		lvl.History.Push(models.MilestoneHistoryEntry{
			OrderID:         ev.OrderID,
			At:              ev.At,
			DeltaDeliveries: 1,
			DeltaOnTime:     onTime,
			DeltaEarnings:   ev.Earnings,
			ProgressAfter:   lvl.OverallProgress,
		})
	}

	for _, i := range completed {
		if i+1 < len(levels) && levels[i+1].Status == enums.MilestoneLocked {
			levels[i+1].Status = enums.MilestoneInProgress
		}
	}
	return completed
}

// overallProgress is the unweighted mean completion percentage over the
// nonzero targets. A level without targets counts as complete.
func overallProgress(c models.MilestoneCounters, target models.MilestoneConditions) float64 {
	var pct []float64
	if target.TotalDeliveries > 0 {
		pct = append(pct, percent(float64(c.TotalDeliveries), float64(target.TotalDeliveries)))
	}
	if target.OnTimeDeliveries > 0 {
		pct = append(pct, percent(float64(c.OnTimeDeliveries), float64(target.OnTimeDeliveries)))
	}
	if target.TotalEarnings.IsPositive() {
		ratio := c.TotalEarnings.Div(target.TotalEarnings).Mul(decimal.NewFromInt(100))
		v, _ := ratio.Float64()
		pct = append(pct, clamp(v))
	}
	if len(pct) == 0 {
		return 100
	}
	return clamp(stat.Mean(pct, nil))
}

func targetsMet(c models.MilestoneCounters, target models.MilestoneConditions) bool {
	return c.TotalDeliveries >= target.TotalDeliveries &&
		c.OnTimeDeliveries >= target.OnTimeDeliveries &&
		c.TotalEarnings.GreaterThanOrEqual(target.TotalEarnings)
}

func percent(value, target float64) float64 {
	return clamp(value / target * 100)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
