// Package geo holds straight-line distance helpers used when no road
// distance is supplied for an order.
package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HaversineKm returns the great-circle distance between two points in kilometers.
func HaversineKm(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// BoundingBox is a lat/lng rectangle that fully contains a search circle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundsAround returns a box covering radiusKm around center. It is used to
// pre-filter rows in SQL before the exact haversine check.
func BoundsAround(center Point, radiusKm float64) BoundingBox {
	if radiusKm < 0 {
		radiusKm = 0
	}
	latDelta := radiusKm / earthRadiusKm * 180 / math.Pi
	cosLat := math.Cos(toRadians(center.Lat))
	lngDelta := 180.0
	if cosLat > 1e-9 {
		lngDelta = math.Min(180, latDelta/cosLat)
	}
	return BoundingBox{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
		MinLng: center.Lng - lngDelta,
		MaxLng: center.Lng + lngDelta,
	}
}

// Within reports whether p lies inside radiusKm of center.
func Within(center, p Point, radiusKm float64) bool {
	return HaversineKm(center, p) <= radiusKm
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
