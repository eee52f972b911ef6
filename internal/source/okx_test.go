package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketgrid/internal/market"
)

func TestOKXCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/market/candles" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT" {
			t.Errorf("instId = %s", got)
		}
		if got := r.URL.Query().Get("bar"); got != "1H" {
			t.Errorf("bar = %s", got)
		}
		// Newest first, millisecond timestamps, as OKX responds.
		fmt.Fprint(w, `{"code":"0","msg":"","data":[
			["1724403600000","50100","50400","50000","50300","12.5","0","0","1"],
			["1724400000000","50000","50200","49900","50100","10.1","0","0","1"]
		]}`)
	}))
	defer srv.Close()

	okx := NewOKX(srv.Client(), srv.URL)
	res, err := okx.Candles(context.Background(), CandleRequest{
		Symbol: "BTCUSDT", Bar: "1h", Limit: 2, Mode: market.ModeSpot,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candles) != 2 {
		t.Fatalf("len = %d, want 2", len(res.Candles))
	}
	if res.Candles[0].Time >= res.Candles[1].Time {
		t.Fatalf("times not strictly increasing: %d, %d", res.Candles[0].Time, res.Candles[1].Time)
	}
	for _, c := range res.Candles {
		if c.Time > 1e11 {
			t.Fatalf("timestamp %d not normalized to seconds", c.Time)
		}
		if err := c.Validate(); err != nil {
			t.Fatal(err)
		}
	}
	if res.Degraded || res.BarUsed != "1h" {
		t.Fatalf("unexpected degradation: %+v", res)
	}
}

func TestOKXCandlesContractInstID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT-SWAP" {
			t.Errorf("instId = %s, want BTC-USDT-SWAP", got)
		}
		fmt.Fprint(w, `{"code":"0","msg":"","data":[]}`)
	}))
	defer srv.Close()

	okx := NewOKX(srv.Client(), srv.URL)
	if _, err := okx.Candles(context.Background(), CandleRequest{
		Symbol: "BTCUSDT", Bar: "1h", Mode: market.ModeContract,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestOKXEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`)
	}))
	defer srv.Close()

	okx := NewOKX(srv.Client(), srv.URL)
	_, err := okx.Ticker(context.Background(), "BTCUSDT", market.ModeSpot)
	if !market.IsKind(err, market.ErrUpstreamProtocol) {
		t.Fatalf("err = %v, want upstream_protocol_error", err)
	}
}

func TestOKXFundingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT-SWAP" {
			t.Errorf("instId = %s", got)
		}
		fmt.Fprint(w, `{"code":"0","msg":"","data":[{
			"fundingRate":"0.0001","nextFundingRate":"0.00012",
			"fundingTime":"1724400000000","nextFundingTime":"1724428800000"
		}]}`)
	}))
	defer srv.Close()

	okx := NewOKX(srv.Client(), srv.URL)
	rec, err := okx.FundingRate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Rate != 0.0001 {
		t.Fatalf("rate = %v", rec.Rate)
	}
	if rec.Timestamp != 1724400000 || rec.NextFundingTime != 1724428800 {
		t.Fatalf("timestamps not normalized: %d, %d", rec.Timestamp, rec.NextFundingTime)
	}
	if rec.PredictedRate == nil || *rec.PredictedRate != 0.00012 {
		t.Fatalf("predicted rate = %v", rec.PredictedRate)
	}
	if rec.QuoteCurrency != "USDT" {
		t.Fatalf("quote = %s", rec.QuoteCurrency)
	}
}

func TestOKXDegradedCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 8h is not an OKX bar; the adapter must request the finer 6H.
		if got := r.URL.Query().Get("bar"); got != "6H" {
			t.Errorf("bar = %s, want 6H", got)
		}
		fmt.Fprint(w, `{"code":"0","msg":"","data":[]}`)
	}))
	defer srv.Close()

	okx := NewOKX(srv.Client(), srv.URL)
	res, err := okx.Candles(context.Background(), CandleRequest{
		Symbol: "BTCUSDT", Bar: "8h", Mode: market.ModeSpot,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded || res.BarUsed != "6h" || res.Advisory == "" {
		t.Fatalf("expected flagged degradation to 6h, got %+v", res)
	}
}
