package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketgrid/config"
	"marketgrid/internal/cache"
	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/internal/registry"
	"marketgrid/internal/source"
)

type stubCatalog struct {
	adapters []source.Adapter
}

func (s *stubCatalog) List() []source.Adapter {
	return s.adapters
}

func (s *stubCatalog) Describe(name string) (registry.Description, error) {
	for _, a := range s.adapters {
		if a.Name() == name {
			return registry.Description{Metadata: a.Metadata(), Capability: a.Capability()}, nil
		}
	}
	return registry.Description{}, market.Errorf(market.ErrUnknownSource, name, "unknown source %s", name)
}

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Metadata() market.SourceMetadata {
	return market.SourceMetadata{Name: s.name, DisplayName: s.name, Kind: market.KindExchange, Active: true}
}
func (s *stubAdapter) Capability() market.Capability {
	return market.Capability{Candles: true, Ticker: true, Modes: []market.Mode{market.ModeSpot}}
}
func (s *stubAdapter) Format() protocol.Format { return protocol.Format{} }
func (s *stubAdapter) Candles(ctx context.Context, req source.CandleRequest) (market.CandleResult, error) {
	return market.CandleResult{}, nil
}
func (s *stubAdapter) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	return market.TickerRecord{}, nil
}

type stubService struct {
	candleReq   source.CandleRequest
	candleErr   error
	tickerMode  market.Mode
	tickerErr   error
	invalidated []cache.DataType
}

func (s *stubService) Candles(ctx context.Context, sourceName string, req source.CandleRequest) (market.CandleResult, error) {
	s.candleReq = req
	if s.candleErr != nil {
		return market.CandleResult{}, s.candleErr
	}
	return market.CandleResult{
		Candles: []market.CandleRecord{
			{Time: 1724400000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
			{Time: 1724403600, Open: 1.5, High: 3, Low: 1, Close: 2, Volume: 12},
		},
		Bar:      req.Bar,
		BarUsed:  "1h",
		Degraded: req.Bar != "1h",
		Cached:   false,
	}, nil
}

func (s *stubService) Ticker(ctx context.Context, sourceName, symbol string, mode market.Mode) (market.TickerRecord, bool, error) {
	s.tickerMode = mode
	if s.tickerErr != nil {
		return market.TickerRecord{}, false, s.tickerErr
	}
	return market.TickerRecord{InstID: symbol, Last: 65000}, true, nil
}

func (s *stubService) FundingRate(ctx context.Context, sourceName, symbol string) (market.FundingRateRecord, bool, error) {
	return market.FundingRateRecord{InstID: symbol, Rate: 0.0001, Timestamp: 1724400000, IntervalHours: 8, NextFundingTime: 1724428800}, false, nil
}

func (s *stubService) FundingHistory(ctx context.Context, sourceName, symbol string, limit int) ([]market.FundingRateRecord, bool, error) {
	return []market.FundingRateRecord{{InstID: symbol, Rate: 0.0001, Timestamp: 1724400000}}, false, nil
}

func (s *stubService) ContractBasis(ctx context.Context, sourceName string, req source.BasisRequest) (market.ContractBasisRecord, bool, error) {
	return market.ContractBasisRecord{InstID: req.Symbol, ContractType: market.ContractPerpetual, Basis: 12.5, Timestamp: 1724400000}, false, nil
}

func (s *stubService) BasisHistory(ctx context.Context, sourceName string, req source.BasisRequest, limit int) ([]market.ContractBasisRecord, error) {
	return []market.ContractBasisRecord{{InstID: req.Symbol, ContractType: market.ContractPerpetual, Timestamp: 1724400000}}, nil
}

func (s *stubService) Invalidate(ctx context.Context, sourceName string, types ...cache.DataType) (int, error) {
	s.invalidated = types
	return 3, nil
}

func newTestServer(svc MarketService) http.Handler {
	catalog := &stubCatalog{adapters: []source.Adapter{&stubAdapter{name: "okx"}, &stubAdapter{name: "kraken"}}}
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, catalog, svc)
	return srv.Handler()
}

func doRequest(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	h := newTestServer(&stubService{})
	rec, body := doRequest(t, h, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK || body["code"].(float64) != 0 {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestListAndDescribeSources(t *testing.T) {
	h := newTestServer(&stubService{})

	rec, body := doRequest(t, h, http.MethodGet, "/api/sources")
	if rec.Code != http.StatusOK || body["count"].(float64) != 2 {
		t.Fatalf("status %d body %v", rec.Code, body)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/sources/okx")
	if rec.Code != http.StatusOK {
		t.Fatalf("describe status %d", rec.Code)
	}

	rec, body = doRequest(t, h, http.MethodGet, "/api/sources/nope")
	if rec.Code != http.StatusNotFound || body["kind"] != "unknown_source" {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
}

func TestTickerDefaultsToSpot(t *testing.T) {
	svc := &stubService{}
	h := newTestServer(svc)

	rec, body := doRequest(t, h, http.MethodGet, "/api/ticker?symbol=BTCUSDT&source=okx")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	if svc.tickerMode != market.ModeSpot {
		t.Fatalf("mode = %s", svc.tickerMode)
	}
	if body["cached"] != true {
		t.Fatalf("cached = %v", body["cached"])
	}
}

func TestTickerMissingParams(t *testing.T) {
	h := newTestServer(&stubService{})
	rec, body := doRequest(t, h, http.MethodGet, "/api/ticker?source=okx")
	if rec.Code != http.StatusBadRequest || body["code"].(float64) != -1 {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
}

func TestCandlesticksMillisecondBoundary(t *testing.T) {
	svc := &stubService{}
	h := newTestServer(svc)

	rec, body := doRequest(t, h, http.MethodGet,
		"/api/candlesticks?symbol=BTCUSDT&bar=30m&source=okx&limit=2&after=1724400000000&before=1724407200000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %v", rec.Code, body)
	}

	// boundaries arrive in ms and reach the service in seconds
	if svc.candleReq.After != 1724400000 || svc.candleReq.Before != 1724407200 {
		t.Fatalf("window = [%d, %d]", svc.candleReq.After, svc.candleReq.Before)
	}
	if svc.candleReq.Limit != 2 || svc.candleReq.Mode != market.ModeSpot {
		t.Fatalf("req = %+v", svc.candleReq)
	}

	rows := body["data"].([]interface{})
	first := rows[0].(map[string]interface{})
	if first["time"].(float64) != 1724400000000 {
		t.Fatalf("outbound time = %v, want milliseconds", first["time"])
	}
	if body["bar"] != "30m" || body["bar_used"] != "1h" || body["degraded"] != true {
		t.Fatalf("degradation fields = %v/%v/%v", body["bar"], body["bar_used"], body["degraded"])
	}
	if body["count"].(float64) != 2 {
		t.Fatalf("count = %v", body["count"])
	}
}

func TestCandlesticksBadWindowParam(t *testing.T) {
	h := newTestServer(&stubService{})
	rec, _ := doRequest(t, h, http.MethodGet,
		"/api/candlesticks?symbol=BTCUSDT&bar=1h&source=okx&after=notanumber")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestErrorKindStatusMapping(t *testing.T) {
	cases := []struct {
		kind   market.ErrorKind
		status int
	}{
		{market.ErrSymbolNotSupported, http.StatusBadRequest},
		{market.ErrUnsupportedGranularity, http.StatusBadRequest},
		{market.ErrUnknownSource, http.StatusNotFound},
		{market.ErrRateLimited, http.StatusTooManyRequests},
		{market.ErrUpstreamUnavailable, http.StatusBadGateway},
		{market.ErrUpstreamProtocol, http.StatusBadGateway},
	}
	for _, tc := range cases {
		svc := &stubService{candleErr: market.NewError(tc.kind, "okx", "boom")}
		h := newTestServer(svc)
		rec, body := doRequest(t, h, http.MethodGet,
			"/api/candlesticks?symbol=BTCUSDT&bar=1h&source=okx")
		if rec.Code != tc.status {
			t.Fatalf("kind %s: status %d, want %d", tc.kind, rec.Code, tc.status)
		}
		if body["kind"] != string(tc.kind) {
			t.Fatalf("kind %s: body kind %v", tc.kind, body["kind"])
		}
	}
}

func TestFundingRateMillisecondOutput(t *testing.T) {
	h := newTestServer(&stubService{})
	rec, body := doRequest(t, h, http.MethodGet, "/api/funding-rate?symbol=BTCUSDT&source=okx")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	data := body["data"].(map[string]interface{})
	if data["timestamp"].(float64) != 1724400000000 {
		t.Fatalf("timestamp = %v, want milliseconds", data["timestamp"])
	}
	if data["next_funding_time"].(float64) != 1724428800000 {
		t.Fatalf("next_funding_time = %v", data["next_funding_time"])
	}
}

func TestContractBasisTypeValidation(t *testing.T) {
	h := newTestServer(&stubService{})

	rec, _ := doRequest(t, h, http.MethodGet,
		"/api/contract-basis?symbol=BTCUSDT&source=okx&contract_type=perpetual")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	rec, _ = doRequest(t, h, http.MethodGet,
		"/api/contract-basis?symbol=BTCUSDT&source=okx&contract_type=weekly")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad contract_type status %d", rec.Code)
	}
}

func TestInvalidate(t *testing.T) {
	svc := &stubService{}
	h := newTestServer(svc)

	rec, body := doRequest(t, h, http.MethodDelete, "/api/cache/okx?type=ticker,candles")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	data := body["data"].(map[string]interface{})
	if data["invalidated"].(float64) != 3 {
		t.Fatalf("invalidated = %v", data["invalidated"])
	}
	if len(svc.invalidated) != 2 || svc.invalidated[0] != cache.TypeTicker || svc.invalidated[1] != cache.TypeCandles {
		t.Fatalf("types = %v", svc.invalidated)
	}
}

func TestRequestIDEcho(t *testing.T) {
	h := newTestServer(&stubService{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["request_id"] != "abc-123" {
		t.Fatalf("body request_id = %v", body["request_id"])
	}
}
