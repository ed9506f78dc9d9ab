package dispatch

import (
	"context"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// sendToAll broadcasts each round to the nearest maxAgents agents. The first
// acceptance wins and withdraws the rest.
type sendToAll struct {
	p allocation.SendToAllParams
}

func newSendToAll(p allocation.SendToAllParams) Strategy {
	return &sendToAll{p: p}
}

func (s *sendToAll) Method() enums.AllocationMethod { return enums.AllocationSendToAll }
func (s *sendToAll) Common() allocation.Common      { return s.p.Common }
func (s *sendToAll) MaxRounds() int                 { return s.p.NumberOfRetries + 1 }
func (s *sendToAll) Capacity() int                  { return 1 }
func (s *sendToAll) EffectiveRound(l Ledger) int    { return countedRounds(l) }

func (s *sendToAll) Select(ctx context.Context, r Round) (Selection, error) {
	cands, err := r.Pool.Nearby(ctx, r.Order.Pickup(), s.p.RadiusKm)
	if err != nil {
		return Selection{}, err
	}
	cands = withCapacity(cands, s.Capacity(), 1)
	rankByDistance(cands, s.p.ConsiderAgentRating)
	return Selection{
		Candidates: firstN(cands, s.p.MaxAgents),
		RadiusKm:   s.p.RadiusKm,
		Exhausted:  true,
	}, nil
}
