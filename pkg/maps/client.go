package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
)

const (
	defaultBaseURL           = "https://routes.googleapis.com"
	defaultTravelMode        = "TWO_WHEELER"
	defaultTimeout           = 3 * time.Second
	computeRoutesPath        = "directions/v2:computeRoutes"
	routesFieldMask          = "routes.distanceMeters"
	errorBodyReadLimit int64 = 1024
)

var errAPIKeyRequired = errors.New("google maps api key is required")

// Client measures road distance through the Google Routes API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	travelMode string
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTravelMode sets the Routes travel mode, e.g. DRIVE or TWO_WHEELER.
func WithTravelMode(mode string) Option {
	return func(c *Client) {
		if trimmed := strings.ToUpper(strings.TrimSpace(mode)); trimmed != "" {
			c.travelMode = trimmed
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds the Routes client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	client := &Client{
		apiKey:     key,
		baseURL:    defaultBaseURL,
		travelMode: defaultTravelMode,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type waypoint struct {
	Location struct {
		LatLng latLng `json:"latLng"`
	} `json:"location"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesRequest struct {
	Origin      waypoint `json:"origin"`
	Destination waypoint `json:"destination"`
	TravelMode  string   `json:"travelMode"`
	Units       string   `json:"units"`
}

func toWaypoint(p geo.Point) waypoint {
	var w waypoint
	w.Location.LatLng = latLng{Latitude: p.Lat, Longitude: p.Lng}
	return w
}

// DistanceKm returns the length in km of the first route Google proposes
// between from and to.
func (c *Client) DistanceKm(ctx context.Context, from, to geo.Point) (float64, error) {
	if c == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	if !from.Valid() || !to.Valid() {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid route endpoints %v -> %v", from, to)
	}

	payload, err := json.Marshal(routesRequest{
		Origin:      toWaypoint(from),
		Destination: toWaypoint(to),
		TravelMode:  c.travelMode,
		Units:       "METRIC",
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal routes request")
	}

	url := strings.TrimRight(c.baseURL, "/") + "/" + computeRoutesPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build routes request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", routesFieldMask)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute routes request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "routes request failed")
	}

	var apiResp struct {
		Routes []struct {
			DistanceMeters int64 `json:"distanceMeters"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode routes response")
	}
	if len(apiResp.Routes) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "no route between points")
	}
	return float64(apiResp.Routes[0].DistanceMeters) / 1000, nil
}
