package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3/simple/price"

// MarketClient fetches spot prices from the CoinGecko API.
type MarketClient struct {
	baseURL string
	http    httpDoer
}

func NewMarketClient() *MarketClient {
	return &MarketClient{baseURL: coingeckoBaseURL, http: &http.Client{}}
}

// Prices returns the current price of each coin id in the given fiat
// currency, e.g. Prices(ctx, []string{"bitcoin"}, "usd").
func (c *MarketClient) Prices(ctx context.Context, coinIDs []string, currency string) (map[string]float64, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(coinIDs, ","))
	params.Set("vs_currencies", currency)

	var payload map[string]map[string]float64
	if err := getJSON(ctx, c.http, withQuery(c.baseURL, params), nil, &payload); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(payload))
	for coin, quotes := range payload {
		price, ok := quotes[currency]
		if !ok {
			return nil, fmt.Errorf("%w: no %s quote for %s", ErrLookupFailed, currency, coin)
		}
		out[coin] = price
	}
	return out, nil
}
