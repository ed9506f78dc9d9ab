package dispatch

import (
	"context"

	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

// DistanceProvider measures travel distance between two points in km.
type DistanceProvider interface {
	DistanceKm(ctx context.Context, from, to geo.Point) (float64, error)
}

// StraightLine is the haversine DistanceProvider.
type StraightLine struct{}

func (StraightLine) DistanceKm(_ context.Context, from, to geo.Point) (float64, error) {
	return geo.HaversineKm(from, to), nil
}
