package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// Candidate is an available agent with its distance to the pickup.
type Candidate struct {
	Agent      models.Agent
	DistanceKm float64
}

// CompanionQuery describes which unassigned orders may ride along with the
// order being dispatched.
type CompanionQuery struct {
	PickupRadiusKm float64
	// DropRadiusKm of zero ignores the drop location.
	DropRadiusKm float64
	Window       time.Duration
	Limit        int
}

// Pool is what a strategy may look at when selecting candidates.
type Pool interface {
	// Nearby returns available agents within radiusKm of center with
	// distances filled in, excluding agents already in the order's ledger.
	Nearby(ctx context.Context, center geo.Point, radiusKm float64) ([]Candidate, error)
	// ActivePickups returns the pickup points of orders the agents carry.
	ActivePickups(ctx context.Context, agentIDs []uuid.UUID) (map[uuid.UUID][]geo.Point, error)
	// Companions returns unassigned orders compatible with the round's order.
	Companions(ctx context.Context, q CompanionQuery) ([]models.Order, error)
}

// Round is one selection attempt for an order.
type Round struct {
	Order  models.Order
	Number int
	Now    time.Time
	Pool   Pool
}

// Selection is a strategy's answer for a round.
type Selection struct {
	Candidates []Candidate
	Companions []models.Order
	RadiusKm   float64
	// Exhausted means later rounds cannot find anything this one did not.
	Exhausted bool
}

// Strategy is one allocation method bound to its frozen parameters.
type Strategy interface {
	Method() enums.AllocationMethod
	Common() allocation.Common
	// MaxRounds bounds how many offer rounds an order gets.
	MaxRounds() int
	// Capacity is how many concurrent tasks an agent may carry.
	Capacity() int
	// EffectiveRound maps the ledger to the round the strategy is in.
	EffectiveRound(l Ledger) int
	Select(ctx context.Context, round Round) (Selection, error)
}

// countedRounds is the default EffectiveRound: the round after the last one
// offered, so rounds skipped while escalating stay skipped.
func countedRounds(l Ledger) int {
	rounds := l.Rounds()
	if len(rounds) == 0 {
		return 0
	}
	return rounds[len(rounds)-1] + 1
}

// rankByDistance orders candidates nearest first. Ties go to the higher
// rating when considerRating is set, otherwise to the agent available the
// longest.
func rankByDistance(cands []Candidate, considerRating bool) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return tieBreak(a, b, considerRating)
	})
}

func tieBreak(a, b Candidate, considerRating bool) bool {
	if considerRating && a.Agent.Rating != b.Agent.Rating {
		return a.Agent.Rating > b.Agent.Rating
	}
	return availableBefore(a.Agent, b.Agent)
}

func availableBefore(a, b models.Agent) bool {
	switch {
	case a.AvailableSince == nil && b.AvailableSince == nil:
		return a.ID.String() < b.ID.String()
	case a.AvailableSince == nil:
		return false
	case b.AvailableSince == nil:
		return true
	case a.AvailableSince.Equal(*b.AvailableSince):
		return a.ID.String() < b.ID.String()
	}
	return a.AvailableSince.Before(*b.AvailableSince)
}

// withCapacity drops candidates that cannot take need more tasks.
func withCapacity(cands []Candidate, capacity, need int) []Candidate {
	out := cands[:0:0]
	for _, c := range cands {
		if c.Agent.ActiveTasks+need <= capacity {
			out = append(out, c)
		}
	}
	return out
}

func firstN(cands []Candidate, n int) []Candidate {
	if n < len(cands) {
		return cands[:n]
	}
	return cands
}
