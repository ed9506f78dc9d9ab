package dispatch

import (
	"context"
	"sort"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// oneByOne offers a single ranked agent per round: captive agents before
// freelancers, then rating when enabled, then distance.
type oneByOne struct {
	p allocation.OneByOneParams
}

func newOneByOne(p allocation.OneByOneParams) Strategy {
	return &oneByOne{p: p}
}

func (s *oneByOne) Method() enums.AllocationMethod { return enums.AllocationOneByOne }
func (s *oneByOne) Common() allocation.Common      { return s.p.Common }
func (s *oneByOne) MaxRounds() int                 { return s.p.NumberOfRetries + 1 }
func (s *oneByOne) Capacity() int                  { return 1 }
func (s *oneByOne) EffectiveRound(l Ledger) int    { return countedRounds(l) }

func (s *oneByOne) Select(ctx context.Context, r Round) (Selection, error) {
	cands, err := r.Pool.Nearby(ctx, r.Order.Pickup(), s.p.RadiusKm)
	if err != nil {
		return Selection{}, err
	}
	cands = withCapacity(cands, s.Capacity(), 1)
	rankOneByOne(cands, s.p.ConsiderAgentRating)
	return Selection{
		Candidates: firstN(cands, 1),
		RadiusKm:   s.p.RadiusKm,
		Exhausted:  true,
	}, nil
}

func rankOneByOne(cands []Candidate, considerRating bool) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		aCaptive := a.Agent.Type == enums.AgentTypeCaptive
		bCaptive := b.Agent.Type == enums.AgentTypeCaptive
		if aCaptive != bCaptive {
			return aCaptive
		}
		if considerRating && a.Agent.Rating != b.Agent.Rating {
			return a.Agent.Rating > b.Agent.Rating
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return tieBreak(a, b, considerRating)
	})
}
