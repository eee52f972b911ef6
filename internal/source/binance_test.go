package source

import (
	"errors"
	"testing"

	"github.com/adshao/go-binance/v2/common"

	"marketgrid/internal/market"
)

func TestBinanceErrorMapping(t *testing.T) {
	b := NewBinance(nil, "", "")

	if err := b.wrapErr(&common.APIError{Code: -1003, Message: "Too many requests."}); !market.IsKind(err, market.ErrRateLimited) {
		t.Fatalf("throttle err = %v, want rate_limited", err)
	}
	if err := b.wrapErr(&common.APIError{Code: -1121, Message: "Invalid symbol."}); !market.IsKind(err, market.ErrUpstreamProtocol) {
		t.Fatalf("rejection err = %v, want upstream_protocol_error", err)
	}
	if err := b.wrapErr(errors.New("connection refused")); !market.IsKind(err, market.ErrUpstreamUnavailable) {
		t.Fatalf("transport err = %v, want upstream_unavailable", err)
	}
}
