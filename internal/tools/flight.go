package tools

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

const tequilaBaseURL = "https://api.tequila.kiwi.com/v2/search"

// Flight is one itinerary option from the flight search API.
type Flight struct {
	CityFrom string  `json:"cityFrom"`
	CityTo   string  `json:"cityTo"`
	Price    float64 `json:"price"`
	Airline  string  `json:"airlines,omitempty"`
	DeepLink string  `json:"deep_link"`
}

// FlightClient searches flights through the Tequila API.
type FlightClient struct {
	baseURL string
	apiKey  string
	http    httpDoer
}

func NewFlightClient(apiKey string) *FlightClient {
	return &FlightClient{baseURL: tequilaBaseURL, apiKey: apiKey, http: &http.Client{}}
}

// Search returns up to limit itineraries between two IATA codes on the
// given date (DD/MM/YYYY, as the upstream expects).
func (c *FlightClient) Search(ctx context.Context, from, to, date string, limit int) ([]Flight, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("fly_from", from)
	params.Set("fly_to", to)
	params.Set("date_from", date)
	params.Set("date_to", date)
	params.Set("limit", strconv.Itoa(limit))

	var payload struct {
		Data []Flight `json:"data"`
	}
	headers := map[string]string{"apikey": c.apiKey}
	if err := getJSON(ctx, c.http, withQuery(c.baseURL, params), headers, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}
