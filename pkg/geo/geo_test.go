package geo

import (
	"math"
	"testing"
)

func TestHaversineKmKnownDistance(t *testing.T) {
	a := Point{Lat: 12.0, Lng: 77.0}
	b := Point{Lat: 13.0, Lng: 77.0}
	got := HaversineKm(a, b)
	if math.Abs(got-111.19) > 0.1 {
		t.Fatalf("expected ~111.19km, got %f", got)
	}
}

func TestHaversineKmZeroForSamePoint(t *testing.T) {
	p := Point{Lat: 40.7128, Lng: -74.0060}
	if got := HaversineKm(p, p); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

func TestBoundsAroundContainsCircle(t *testing.T) {
	center := Point{Lat: 19.076, Lng: 72.8777}
	box := BoundsAround(center, 5)
	north := Point{Lat: box.MaxLat, Lng: center.Lng}
	east := Point{Lat: center.Lat, Lng: box.MaxLng}
	if d := HaversineKm(center, north); d < 4.99 {
		t.Fatalf("box too small northward: %f", d)
	}
	if d := HaversineKm(center, east); d < 4.99 {
		t.Fatalf("box too small eastward: %f", d)
	}
}

func TestWithin(t *testing.T) {
	center := Point{Lat: 0, Lng: 0}
	if !Within(center, Point{Lat: 0.01, Lng: 0}, 2) {
		t.Fatal("expected point ~1.1km away to be within 2km")
	}
	if Within(center, Point{Lat: 0.1, Lng: 0}, 2) {
		t.Fatal("expected point ~11km away to be outside 2km")
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{Lat: 45, Lng: 120}).Valid() {
		t.Fatal("expected valid point")
	}
	if (Point{Lat: 91, Lng: 0}).Valid() {
		t.Fatal("expected invalid latitude")
	}
}
