package earnings

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// FeeConfig is the pricing part of an AgentEarningSetting.
type FeeConfig struct {
	BaseFee            decimal.Decimal
	BaseKm             decimal.Decimal
	PerKmFeeBeyondBase decimal.Decimal
	PeakHourBonus      decimal.Decimal
	RainBonus          decimal.Decimal
}

// Surge is one active surge zone the delivery falls into.
type Surge struct {
	Type  enums.SurgeType
	Value decimal.Decimal
}

// Input holds everything Calculate needs for one delivery.
type Input struct {
	DistanceKm decimal.Decimal
	Fee        FeeConfig
	Surges     []Surge
	Tip        decimal.Decimal
	PeakHour   bool
	Raining    bool
}

// Breakdown is the per-delivery fee split. Nothing is rounded.
type Breakdown struct {
	BaseDeliveryFee      decimal.Decimal
	DistanceKm           decimal.Decimal
	DistanceBeyondBaseKm decimal.Decimal
	ExtraDistanceFee     decimal.Decimal
	SurgeAmount          decimal.Decimal
	PeakHourBonus        decimal.Decimal
	RainBonus            decimal.Decimal
	TipAmount            decimal.Decimal
	Total                decimal.Decimal
}

// BonusAmount is the peak-hour and rain addends combined.
func (b Breakdown) BonusAmount() decimal.Decimal {
	return b.PeakHourBonus.Add(b.RainBonus)
}

// Calculate prices a delivery. Negative distances are treated as zero.
func Calculate(in Input) Breakdown {
	distance := decimal.Max(in.DistanceKm, decimal.Zero)
	beyond := decimal.Max(distance.Sub(in.Fee.BaseKm), decimal.Zero)

	out := Breakdown{
		BaseDeliveryFee:      in.Fee.BaseFee,
		DistanceKm:           distance,
		DistanceBeyondBaseKm: beyond,
		ExtraDistanceFee:     beyond.Mul(in.Fee.PerKmFeeBeyondBase),
		SurgeAmount:          SurgeAmount(in.Fee.BaseFee, in.Surges),
		PeakHourBonus:        decimal.Zero,
		RainBonus:            decimal.Zero,
		TipAmount:            in.Tip,
	}
	if in.PeakHour {
		out.PeakHourBonus = in.Fee.PeakHourBonus
	}
	if in.Raining {
		out.RainBonus = in.Fee.RainBonus
	}
	out.Total = out.BaseDeliveryFee.
		Add(out.ExtraDistanceFee).
		Add(out.SurgeAmount).
		Add(out.BonusAmount()).
		Add(out.TipAmount)
	return out
}

// SurgeAmount sums the zones: fixed zones add their value, percentage zones
// add that share of the base fee.
func SurgeAmount(baseFee decimal.Decimal, surges []Surge) decimal.Decimal {
	total := decimal.Zero
	for _, s := range surges {
		switch s.Type {
		case enums.SurgeTypePercentage:
			total = total.Add(baseFee.Mul(s.Value).Div(hundred))
		default:
			total = total.Add(s.Value)
		}
	}
	return total
}

// PeakWindow is a daily "HH:MM-HH:MM" interval. End before start wraps past
// midnight.
type PeakWindow struct {
	Start int
	End   int
}

// ParsePeakWindow parses "HH:MM-HH:MM".
func ParsePeakWindow(raw string) (PeakWindow, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return PeakWindow{}, fmt.Errorf("peak window %q: expected HH:MM-HH:MM", raw)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return PeakWindow{}, fmt.Errorf("peak window %q: %w", raw, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return PeakWindow{}, fmt.Errorf("peak window %q: %w", raw, err)
	}
	if start == end {
		return PeakWindow{}, fmt.Errorf("peak window %q is empty", raw)
	}
	return PeakWindow{Start: start, End: end}, nil
}

func parseClock(raw string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute %q", mm)
	}
	return h*60 + m, nil
}

// Contains reports whether the wall clock of at falls inside the window.
func (w PeakWindow) Contains(at time.Time) bool {
	minute := at.Hour()*60 + at.Minute()
	if w.Start < w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

// InPeakHours reports whether at falls in any of the raw windows. Windows that
// fail to parse are ignored; they are rejected when settings are written.
func InPeakHours(windows []string, at time.Time) bool {
	for _, raw := range windows {
		w, err := ParsePeakWindow(raw)
		if err != nil {
			continue
		}
		if w.Contains(at) {
			return true
		}
	}
	return false
}

// PeakApplies decides whether the peak-hour bonus is paid at at. A setting
// without windows pays it on every delivery.
func PeakApplies(windows []string, at time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	return InPeakHours(windows, at)
}
