package incentives

import (
	"fmt"
	"time"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// Period is a half-open [Start, End) window identified per plan type:
// "2006-01-02" for daily, ISO "2006-W01" for weekly and "2006-01" for monthly.
type Period struct {
	Identifier string
	Start      time.Time
	End        time.Time
}

// PeriodFor returns the window containing asOf, computed on the wall clock of
// loc.
func PeriodFor(planType enums.IncentivePlanType, asOf time.Time, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := asOf.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch planType {
	case enums.PlanTypeDaily:
		return Period{
			Identifier: day.Format("2006-01-02"),
			Start:      day,
			End:        day.AddDate(0, 0, 1),
		}, nil
	case enums.PlanTypeWeekly:
		// Monday is day zero of an ISO week
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		year, week := start.ISOWeek()
		return Period{
			Identifier: fmt.Sprintf("%04d-W%02d", year, week),
			Start:      start,
			End:        start.AddDate(0, 0, 7),
		}, nil
	case enums.PlanTypeMonthly:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return Period{
			Identifier: start.Format("2006-01"),
			Start:      start,
			End:        start.AddDate(0, 1, 0),
		}, nil
	}
	return Period{}, fmt.Errorf("unknown plan type %q", planType)
}
