package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"marketgrid/internal/market"
)

const defaultTimeout = 10 * time.Second

// NewHTTPClient builds the shared upstream client: pooled transport, hard
// timeout, optional forward proxy.
func NewHTTPClient(timeout time.Duration, proxyURL string) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		MaxConnsPerHost:     32,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
	}
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}

	return &http.Client{Transport: transport, Timeout: timeout}
}

// getJSON performs a GET and decodes the body, mapping every transport and
// status failure into the error taxonomy so nothing upstream-specific leaks
// to callers.
func getJSON(ctx context.Context, client *http.Client, source, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return market.WrapError(market.ErrUpstreamProtocol, source, err, "invalid request url")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return market.WrapError(market.ErrUpstreamUnavailable, source, err, "upstream request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return market.NewError(market.ErrRateLimited, source, "upstream throttled the request")
	case resp.StatusCode >= 500:
		return market.Errorf(market.ErrUpstreamUnavailable, source, "upstream returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return market.Errorf(market.ErrUpstreamProtocol, source, "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return market.WrapError(market.ErrUpstreamUnavailable, source, err, "reading response body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return market.WrapError(market.ErrUpstreamProtocol, source, err, "decoding response body")
	}
	return nil
}

// query renders url parameters, skipping empty values.
func query(base string, params map[string]string) string {
	vals := url.Values{}
	for k, v := range params {
		if v != "" {
			vals.Set(k, v)
		}
	}
	if len(vals) == 0 {
		return base
	}
	return fmt.Sprintf("%s?%s", base, vals.Encode())
}
