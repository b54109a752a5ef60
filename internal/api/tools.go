package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/averlon/instantagent/internal/tools"
)

// ToolsHandler exposes the lookup integrations agents can be equipped
// with. Each endpoint forwards its parameters upstream and returns the
// normalized result.
type ToolsHandler struct {
	*Handler
	flights *tools.FlightClient
	market  *tools.MarketClient
	maps    *tools.MapsClient
}

func NewToolsHandler(base *Handler, flights *tools.FlightClient, market *tools.MarketClient, maps *tools.MapsClient) *ToolsHandler {
	return &ToolsHandler{Handler: base, flights: flights, market: market, maps: maps}
}

// RegisterRoutes registers lookup routes.
func (h *ToolsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/tools", func(r chi.Router) {
		r.Get("/flights", h.SearchFlights)
		r.Get("/prices", h.GetPrices)
		r.Get("/route", h.GetRoute)
	})
}

// SearchFlights proxies a flight search: ?from=VIE&to=NRT&date=01/10/2026.
func (h *ToolsHandler) SearchFlights(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	if !h.limiter.Allow(id) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	q := r.URL.Query()
	from, to, date := q.Get("from"), q.Get("to"), q.Get("date")
	if from == "" || to == "" || date == "" {
		Error(w, http.StatusBadRequest, "from, to and date are required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	flights, err := h.flights.Search(r.Context(), from, to, date, limit)
	if err != nil {
		h.logger.Warn("flight lookup failed", "identity", id, "error", err)
		Error(w, http.StatusBadGateway, "flight search is unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"flights": flights})
}

// GetPrices proxies a spot-price lookup: ?coins=bitcoin,ethereum&currency=usd.
func (h *ToolsHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	if !h.limiter.Allow(id) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	q := r.URL.Query()
	coins := splitCSV(q.Get("coins"))
	currency := q.Get("currency")
	if len(coins) == 0 {
		Error(w, http.StatusBadRequest, "coins is required")
		return
	}
	if currency == "" {
		currency = "usd"
	}

	prices, err := h.market.Prices(r.Context(), coins, currency)
	if err != nil {
		h.logger.Warn("price lookup failed", "identity", id, "error", err)
		Error(w, http.StatusBadGateway, "price lookup is unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"currency": currency, "prices": prices})
}

// GetRoute geocodes both endpoints and returns the driving route:
// ?from=Vienna&to=Salzburg.
func (h *ToolsHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.registryFor(w, r)
	if !ok {
		return
	}
	if !h.limiter.Allow(id) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	q := r.URL.Query()
	fromQuery, toQuery := q.Get("from"), q.Get("to")
	if fromQuery == "" || toQuery == "" {
		Error(w, http.StatusBadRequest, "from and to are required")
		return
	}

	from, err := h.maps.Geocode(r.Context(), fromQuery)
	if err != nil {
		Error(w, http.StatusBadGateway, "could not resolve origin")
		return
	}
	to, err := h.maps.Geocode(r.Context(), toQuery)
	if err != nil {
		Error(w, http.StatusBadGateway, "could not resolve destination")
		return
	}
	route, err := h.maps.DrivingRoute(r.Context(), from, to)
	if err != nil {
		h.logger.Warn("route lookup failed", "identity", id, "error", err)
		Error(w, http.StatusBadGateway, "routing is unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"from":             from,
		"to":               to,
		"distance_meters":  route.DistanceMeters,
		"duration_seconds": route.DurationSeconds,
	})
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
