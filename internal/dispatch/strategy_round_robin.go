package dispatch

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// roundRobin rotates through agents by least recent assignment. Agents
// already carrying a pickup close to this one go first so their trips can
// be pooled.
type roundRobin struct {
	p allocation.RoundRobinParams
}

func newRoundRobin(p allocation.RoundRobinParams) Strategy {
	return &roundRobin{p: p}
}

func (s *roundRobin) Method() enums.AllocationMethod { return enums.AllocationRoundRobin }
func (s *roundRobin) Common() allocation.Common      { return s.p.Common }
func (s *roundRobin) MaxRounds() int                 { return s.p.NumberOfRetries + 1 }
func (s *roundRobin) Capacity() int                  { return s.p.MaxTasksAllowed }

// EffectiveRound skips fully declined rounds when declines restart the
// search, so a decline never burns a retry.
func (s *roundRobin) EffectiveRound(l Ledger) int {
	if !s.p.RestartAllocationOnDecline {
		return countedRounds(l)
	}
	n := 0
	for _, round := range l.Rounds() {
		if !l.RoundDeclined(round) {
			n++
		}
	}
	return n
}

func (s *roundRobin) Select(ctx context.Context, r Round) (Selection, error) {
	cands, err := r.Pool.Nearby(ctx, r.Order.Pickup(), s.p.RadiusKm)
	if err != nil {
		return Selection{}, err
	}
	cands = withCapacity(cands, s.Capacity(), 1)

	preferred := map[uuid.UUID]bool{}
	if s.p.SamePickupRadiusMeters > 0 {
		var busy []uuid.UUID
		for _, c := range cands {
			if c.Agent.ActiveTasks > 0 {
				busy = append(busy, c.Agent.ID)
			}
		}
		if len(busy) > 0 {
			pickups, err := r.Pool.ActivePickups(ctx, busy)
			if err != nil {
				return Selection{}, err
			}
			radiusKm := s.p.SamePickupRadiusMeters / 1000
			for agentID, points := range pickups {
				for _, p := range points {
					if geo.Within(r.Order.Pickup(), p, radiusKm) {
						preferred[agentID] = true
						break
					}
				}
			}
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if preferred[a.Agent.ID] != preferred[b.Agent.ID] {
			return preferred[a.Agent.ID]
		}
		al, bl := a.Agent.LastAssignedAt, b.Agent.LastAssignedAt
		switch {
		case al == nil && bl != nil:
			return true
		case al != nil && bl == nil:
			return false
		case al != nil && bl != nil && !al.Equal(*bl):
			return al.Before(*bl)
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return tieBreak(a, b, s.p.ConsiderAgentRating)
	})

	return Selection{
		Candidates: firstN(cands, 1),
		RadiusKm:   s.p.RadiusKm,
		Exhausted:  true,
	}, nil
}
