// Package hadith – upstream API client
//
// Single GET endpoint, one free-text query parameter plus optional extras,
// JSON array response of loosely-typed objects. No authentication token is
// documented; a descriptive client identifier header is sent with every
// request. Outbound calls are throttled with a token bucket so a burst of
// user searches cannot hammer the upstream.
package hadith

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

// Client talks to the external Hadith API. Safe for concurrent use.
type Client struct {
	baseURL    string
	clientName string
	http       *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a Client with a bounded request timeout and an
// outbound token bucket (rps tokens per second, burst capacity).
func NewClient(baseURL, clientName string, timeout time.Duration, rps float64, burst int) *Client {
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    baseURL,
		clientName: clientName,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Fetch issues one search request and decodes the response array. Extra
// params are appended to the query string in sorted order so equivalent
// requests produce identical URLs.
//
// Errors: transport failures and context cancellation are returned as-is;
// non-2xx statuses as *StatusError; undecodable bodies as the json error.
func (c *Client) Fetch(ctx context.Context, query string, params map[string]string) ([]RawRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, params[k])
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client", c.clientName)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out []RawRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
