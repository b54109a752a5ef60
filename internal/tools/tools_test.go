package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFlightSearchForwardsParamsAndKey(t *testing.T) {
	t.Parallel()
	var gotQuery map[string]string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotQuery = map[string]string{
			"fly_from":  r.URL.Query().Get("fly_from"),
			"fly_to":    r.URL.Query().Get("fly_to"),
			"date_from": r.URL.Query().Get("date_from"),
			"limit":     r.URL.Query().Get("limit"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [
			{"cityFrom": "Berlin", "cityTo": "Tokyo", "price": 612.5, "deep_link": "https://example.com/1"},
			{"cityFrom": "Berlin", "cityTo": "Tokyo", "price": 689.0, "deep_link": "https://example.com/2"}
		]}`))
	}))
	defer srv.Close()

	client := &FlightClient{baseURL: srv.URL, apiKey: "test-key", http: srv.Client()}
	flights, err := client.Search(context.Background(), "BER", "TYO", "01/04/2026", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("Expected apikey header, got %q", gotKey)
	}
	if gotQuery["fly_from"] != "BER" || gotQuery["fly_to"] != "TYO" {
		t.Errorf("Expected route params forwarded, got %+v", gotQuery)
	}
	if gotQuery["date_from"] != "01/04/2026" {
		t.Errorf("Expected date forwarded, got %q", gotQuery["date_from"])
	}
	if gotQuery["limit"] != "2" {
		t.Errorf("Expected limit 2, got %q", gotQuery["limit"])
	}
	if len(flights) != 2 || flights[0].Price != 612.5 {
		t.Errorf("Expected two parsed flights, got %+v", flights)
	}
}

func TestFlightSearchDefaultsLimit(t *testing.T) {
	t.Parallel()
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	client := &FlightClient{baseURL: srv.URL, http: srv.Client()}
	if _, err := client.Search(context.Background(), "BER", "TYO", "01/04/2026", 0); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotLimit != "5" {
		t.Errorf("Expected default limit 5, got %q", gotLimit)
	}
}

func TestFlightSearchUpstreamError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := &FlightClient{baseURL: srv.URL, http: srv.Client()}
	_, err := client.Search(context.Background(), "BER", "TYO", "01/04/2026", 1)
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("Expected ErrLookupFailed, got %v", err)
	}
}

func TestMarketPrices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin,ethereum" {
			t.Errorf("Expected joined coin ids, got %q", got)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "eur" {
			t.Errorf("Expected currency eur, got %q", got)
		}
		_, _ = w.Write([]byte(`{"bitcoin": {"eur": 61250.12}, "ethereum": {"eur": 2410.4}}`))
	}))
	defer srv.Close()

	client := &MarketClient{baseURL: srv.URL, http: srv.Client()}
	prices, err := client.Prices(context.Background(), []string{"bitcoin", "ethereum"}, "eur")
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}
	if prices["bitcoin"] != 61250.12 || prices["ethereum"] != 2410.4 {
		t.Errorf("Expected parsed quotes, got %+v", prices)
	}
}

func TestMarketPricesMissingQuote(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin": {"usd": 65000}}`))
	}))
	defer srv.Close()

	client := &MarketClient{baseURL: srv.URL, http: srv.Client()}
	_, err := client.Prices(context.Background(), []string{"bitcoin"}, "eur")
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("Expected ErrLookupFailed for missing quote, got %v", err)
	}
}

func TestGeocodeAndRoute(t *testing.T) {
	t.Parallel()
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "tools-test/1.0" {
			t.Errorf("Expected custom User-Agent, got %q", got)
		}
		switch r.URL.Query().Get("q") {
		case "Berlin":
			_, _ = w.Write([]byte(`[{"display_name": "Berlin, Germany", "lat": "52.52", "lon": "13.40"}]`))
		case "Hamburg":
			_, _ = w.Write([]byte(`[{"display_name": "Hamburg, Germany", "lat": "53.55", "lon": "9.99"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer geo.Close()

	var gotRoutePath string
	osrm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRoutePath = r.URL.Path
		_, _ = w.Write([]byte(`{"routes": [{"distance": 289000.5, "duration": 10980.2}]}`))
	}))
	defer osrm.Close()

	client := &MapsClient{
		nominatimURL: geo.URL,
		osrmURL:      osrm.URL,
		userAgent:    "tools-test/1.0",
		http:         http.DefaultClient,
	}

	from, err := client.Geocode(context.Background(), "Berlin")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if from.DisplayName != "Berlin, Germany" {
		t.Errorf("Expected best match, got %q", from.DisplayName)
	}

	to, err := client.Geocode(context.Background(), "Hamburg")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}

	route, err := client.DrivingRoute(context.Background(), from, to)
	if err != nil {
		t.Fatalf("DrivingRoute failed: %v", err)
	}
	if route.DistanceMeters != 289000.5 || route.DurationSeconds != 10980.2 {
		t.Errorf("Expected parsed route, got %+v", route)
	}
	if gotRoutePath != "/13.40,52.52;9.99,53.55" {
		t.Errorf("Expected lon,lat pairs in route path, got %q", gotRoutePath)
	}
}

func TestGeocodeNoResults(t *testing.T) {
	t.Parallel()
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer geo.Close()

	client := &MapsClient{nominatimURL: geo.URL, osrmURL: geo.URL, http: http.DefaultClient}
	_, err := client.Geocode(context.Background(), "Atlantis")
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("Expected ErrLookupFailed, got %v", err)
	}
}
