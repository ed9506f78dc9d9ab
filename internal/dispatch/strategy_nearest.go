package dispatch

import (
	"context"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// nearestAvailable offers the nearest agent only and widens the radius each
// round that ends in silence or finds nobody.
type nearestAvailable struct {
	p allocation.NearestAvailableParams
}

func newNearestAvailable(p allocation.NearestAvailableParams) Strategy {
	return &nearestAvailable{p: p}
}

func (s *nearestAvailable) Method() enums.AllocationMethod { return enums.AllocationNearestAvailable }
func (s *nearestAvailable) Common() allocation.Common      { return s.p.Common }
func (s *nearestAvailable) Capacity() int                  { return 1 }
func (s *nearestAvailable) EffectiveRound(l Ledger) int    { return countedRounds(l) }

func (s *nearestAvailable) MaxRounds() int {
	if steps := s.p.Steps(); steps > s.p.NumberOfRetries+1 {
		return steps
	}
	return s.p.NumberOfRetries + 1
}

func (s *nearestAvailable) Select(ctx context.Context, r Round) (Selection, error) {
	radius := s.p.RadiusForRound(r.Number)
	cands, err := r.Pool.Nearby(ctx, r.Order.Pickup(), radius)
	if err != nil {
		return Selection{}, err
	}
	cands = withCapacity(cands, s.Capacity(), 1)
	rankByDistance(cands, s.p.ConsiderAgentRating)
	return Selection{
		Candidates: firstN(cands, 1),
		RadiusKm:   radius,
		Exhausted:  radius >= s.p.MaximumRadiusKm,
	}, nil
}
