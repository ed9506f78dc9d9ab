package maps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("test-key",
		WithBaseURL("http://routes.test/"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func reply(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestDistanceKmRequestAndResponse(t *testing.T) {
	var gotURL string
	var gotHeaders http.Header
	var gotBody routesRequest

	client := stubClient(t, func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		gotHeaders = req.Header.Clone()
		if err := json.NewDecoder(req.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return reply(http.StatusOK, `{"routes":[{"distanceMeters":4250},{"distanceMeters":9000}]}`), nil
	})

	km, err := client.DistanceKm(context.Background(), geo.Point{Lat: 12.97, Lng: 77.59}, geo.Point{Lat: 12.93, Lng: 77.62})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if km != 4.25 {
		t.Fatalf("expected 4.25 km, got %v", km)
	}
	if gotURL != "http://routes.test/directions/v2:computeRoutes" {
		t.Fatalf("unexpected url %q", gotURL)
	}
	if gotHeaders.Get("X-Goog-Api-Key") != "test-key" {
		t.Fatalf("missing api key header")
	}
	if gotHeaders.Get("X-Goog-FieldMask") != routesFieldMask {
		t.Fatalf("unexpected field mask %q", gotHeaders.Get("X-Goog-FieldMask"))
	}
	if gotBody.TravelMode != defaultTravelMode {
		t.Fatalf("unexpected travel mode %q", gotBody.TravelMode)
	}
	if gotBody.Origin.Location.LatLng.Latitude != 12.97 || gotBody.Destination.Location.LatLng.Longitude != 77.62 {
		t.Fatalf("unexpected waypoints %+v", gotBody)
	}
}

func TestDistanceKmFailuresAreDependencyErrors(t *testing.T) {
	cases := map[string]string{
		"bad status": "",
		"no routes":  `{"routes":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := stubClient(t, func(*http.Request) (*http.Response, error) {
				if body == "" {
					return reply(http.StatusForbidden, `{"error":"denied"}`), nil
				}
				return reply(http.StatusOK, body), nil
			})
			_, err := client.DistanceKm(context.Background(), geo.Point{Lat: 1, Lng: 1}, geo.Point{Lat: 2, Lng: 2})
			if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
				t.Fatalf("expected dependency error, got %v", err)
			}
		})
	}
}

func TestDistanceKmRejectsInvalidPoints(t *testing.T) {
	client := stubClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("request should not be sent")
		return nil, nil
	})
	_, err := client.DistanceKm(context.Background(), geo.Point{Lat: 120}, geo.Point{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("  "); err != errAPIKeyRequired {
		t.Fatalf("expected errAPIKeyRequired, got %v", err)
	}
	client, err := NewClient("k", WithTravelMode(" drive "))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.travelMode != "DRIVE" || client.baseURL != defaultBaseURL {
		t.Fatalf("unexpected client %+v", client)
	}
}
