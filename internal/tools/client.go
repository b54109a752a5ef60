// Package tools wraps the external lookup APIs agents can be equipped
// with: flight search, market data, and geocoding/routing. These are
// stateless parameter-forwarding calls with no retry discipline of
// their own.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrLookupFailed wraps any upstream lookup failure.
var ErrLookupFailed = errors.New("lookup failed")

const lookupTimeout = 15 * time.Second

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func getJSON(ctx context.Context, client httpDoer, rawURL string, headers map[string]string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrLookupFailed, err)
	}
	return nil
}

func withQuery(base string, params url.Values) string {
	return base + "?" + params.Encode()
}
