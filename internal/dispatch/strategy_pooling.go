package dispatch

import (
	"context"
	"time"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// pooling groups unassigned orders sharing a pickup area and creation window
// into one multi-order offer for the nearest agent.
type pooling struct {
	p allocation.PoolingParams
}

func newPooling(p allocation.PoolingParams) Strategy {
	return &pooling{p: p}
}

func (s *pooling) Method() enums.AllocationMethod { return enums.AllocationPooling }
func (s *pooling) Common() allocation.Common      { return s.p.Common }
func (s *pooling) MaxRounds() int                 { return s.p.NumberOfRetries + 1 }
func (s *pooling) Capacity() int                  { return s.p.PoolingSettings.MaxOrdersPerPool }
func (s *pooling) EffectiveRound(l Ledger) int    { return countedRounds(l) }

func (s *pooling) Select(ctx context.Context, r Round) (Selection, error) {
	cands, err := r.Pool.Nearby(ctx, r.Order.Pickup(), s.p.RadiusKm)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{RadiusKm: s.p.RadiusKm, Exhausted: true}

	if s.p.PoolingSettings.MaxOrdersPerPool > 1 {
		companions, err := r.Pool.Companions(ctx, CompanionQuery{
			PickupRadiusKm: s.p.PoolingSettings.PickupRadiusMeters / 1000,
			Window:         time.Duration(s.p.PoolingSettings.TimeWindowSec) * time.Second,
			Limit:          s.p.PoolingSettings.MaxOrdersPerPool - 1,
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
