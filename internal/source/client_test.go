package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketgrid/internal/market"
)

func TestGetJSONStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   market.ErrorKind
	}{
		{http.StatusTooManyRequests, market.ErrRateLimited},
		{http.StatusInternalServerError, market.ErrUpstreamUnavailable},
		{http.StatusBadGateway, market.ErrUpstreamUnavailable},
		{http.StatusNotFound, market.ErrUpstreamProtocol},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		var out map[string]interface{}
		err := getJSON(context.Background(), srv.Client(), "test", srv.URL, &out)
		srv.Close()
		if !market.IsKind(err, tc.kind) {
			t.Fatalf("status %d: err = %v, want kind %s", tc.status, err, tc.kind)
		}
	}
}

func TestGetJSONDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := getJSON(context.Background(), srv.Client(), "test", srv.URL, &out)
	if !market.IsKind(err, market.ErrUpstreamProtocol) {
		t.Fatalf("err = %v, want upstream_protocol_error", err)
	}
}

func TestGetJSONUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	var out map[string]interface{}
	err := getJSON(context.Background(), http.DefaultClient, "test", srv.URL, &out)
	if !market.IsKind(err, market.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream_unavailable", err)
	}
}
