package dispatch

import (
	"context"
	"time"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// fifo serves orders in arrival order (the pending drain feeds it oldest
// first), escalates the radius like nearestAvailable and can club nearby
// unassigned orders into the same trip.
type fifo struct {
	p allocation.FIFOParams
}

func newFIFO(p allocation.FIFOParams) Strategy {
	return &fifo{p: p}
}

func (s *fifo) Method() enums.AllocationMethod { return enums.AllocationFIFO }
func (s *fifo) Common() allocation.Common      { return s.p.Common }
func (s *fifo) MaxRounds() int                 { return s.p.Steps() }
func (s *fifo) Capacity() int                  { return s.p.MaximumBatchLimit }
func (s *fifo) EffectiveRound(l Ledger) int    { return countedRounds(l) }

func (s *fifo) Select(ctx context.Context, r Round) (Selection, error) {
	radius := s.p.RadiusForRound(r.Number)
	cands, err := r.Pool.Nearby(ctx, r.Order.Pickup(), radius)
	if err != nil {
		return Selection{}, err
	}

	sel := Selection{RadiusKm: radius, Exhausted: radius >= s.p.MaximumRadiusKm}

	if s.p.EnableClubbing && s.p.MaximumBatchSize > 1 {
		companions, err := r.Pool.Companions(ctx, CompanionQuery{
			PickupRadiusKm: s.p.ClubbingSettings.PickupRadiusKm,
			DropRadiusKm:   s.p.ClubbingSettings.DropRadiusKm,
			Window:         time.Duration(s.p.ClubbingSettings.TimeWindowSec) * time.Second,
			Limit:          s.p.MaximumBatchSize - 1,
		})
		if err != nil {
			return Selection{}, err
		}
		if fit := withCapacity(cands, s.Capacity(), 1+len(companions)); len(companions) > 0 && len(fit) > 0 {
			rankByDistance(fit, s.p.ConsiderAgentRating)
			sel.Candidates = firstN(fit, 1)
			sel.Companions = companions
			return sel, nil
		}
	}

	cands = withCapacity(cands, s.Capacity(), 1)
	rankByDistance(cands, s.p.ConsiderAgentRating)
	sel.Candidates = firstN(cands, 1)
	return sel, nil
}
