package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

// orderPool is the Pool a strategy sees for one order's round.
type orderPool struct {
	order     models.Order
	offered   map[uuid.UUID]struct{}
	repo      Repository
	directory AgentDirectory
	distance  DistanceProvider
	logg      *logger.Logger
}

// Nearby lists agents not yet offered this order whose provider distance to
// center is within radiusKm.
func (p *orderPool) Nearby(ctx context.Context, center geo.Point, radiusKm float64) ([]Candidate, error) {
	agents, err := p.directory.Available(ctx, center, radiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(agents))
	for _, a := range agents {
		if _, seen := p.offered[a.ID]; seen {
			continue
		}
		d, err := p.distance.DistanceKm(ctx, a.Location(), center)
		if err != nil {
			p.logg.Warn(p.logg.WithAgentID(ctx, a.ID.String()), "distance provider failed; using straight line")
			d = geo.HaversineKm(a.Location(), center)
		}
		// the directory prefilters on straight-line distance; roads can be longer
		if d > radiusKm {
			continue
		}
		out = append(out, Candidate{Agent: a, DistanceKm: d})
	}
	return out, nil
}

func (p *orderPool) ActivePickups(ctx context.Context, agentIDs []uuid.UUID) (map[uuid.UUID][]geo.Point, error) {
	return p.directory.ActivePickups(ctx, agentIDs)
}

func (p *orderPool) Companions(ctx context.Context, q CompanionQuery) ([]models.Order, error) {
	if q.Limit <= 0 || q.PickupRadiusKm <= 0 {
		return nil, nil
	}
	created := p.order.CreatedAt
	rows, err := p.repo.ListCompanionCandidates(ctx, p.order,
		geo.BoundsAround(p.order.Pickup(), q.PickupRadiusKm),
		created.Add(-q.Window), created.Add(q.Window))
	if err != nil {
		return nil, err
	}
	var out []models.Order
	for _, o := range rows {
		if !geo.Within(p.order.Pickup(), o.Pickup(), q.PickupRadiusKm) {
			continue
		}
		if q.DropRadiusKm > 0 && !geo.Within(p.order.Drop(), o.Drop(), q.DropRadiusKm) {
			continue
		}
		out = append(out, o)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
