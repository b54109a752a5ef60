package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const (
	nominatimBaseURL = "https://nominatim.openstreetmap.org/search"
	osrmBaseURL      = "https://router.project-osrm.org/route/v1/driving"
)

// Place is a geocoded location.
type Place struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Route summarizes a driving route between two places.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// MapsClient geocodes through Nominatim and routes through OSRM.
type MapsClient struct {
	nominatimURL string
	osrmURL      string
	userAgent    string
	http         httpDoer
}

func NewMapsClient(userAgent string) *MapsClient {
	return &MapsClient{
		nominatimURL: nominatimBaseURL,
		osrmURL:      osrmBaseURL,
		userAgent:    userAgent,
		http:         &http.Client{},
	}
}

// Geocode resolves a free-form query to its best-matching place.
func (c *MapsClient) Geocode(ctx context.Context, query string) (*Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	var places []Place
	headers := map[string]string{"User-Agent": c.userAgent}
	if err := getJSON(ctx, c.http, withQuery(c.nominatimURL, params), headers, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("%w: no results for %q", ErrLookupFailed, query)
	}
	return &places[0], nil
}

// DrivingRoute returns the fastest driving route between two geocoded
// places.
func (c *MapsClient) DrivingRoute(ctx context.Context, from, to *Place) (*Route, error) {
	rawURL := fmt.Sprintf("%s/%s,%s;%s,%s?overview=false", c.osrmURL, from.Lon, from.Lat, to.Lon, to.Lat)

	var payload struct {
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"routes"`
	}
	if err := getJSON(ctx, c.http, rawURL, nil, &payload); err != nil {
		return nil, err
	}
	if len(payload.Routes) == 0 {
		return nil, fmt.Errorf("%w: no route found", ErrLookupFailed)
	}
	return &Route{
		DistanceMeters:  payload.Routes[0].Distance,
		DurationSeconds: payload.Routes[0].Duration,
	}, nil
}
