package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"marketgrid/internal/cache"
	"marketgrid/internal/market"
	"marketgrid/internal/source"

	"github.com/gin-gonic/gin"
)

type handlers struct {
	catalog SourceCatalog
	svc     MarketService
}

// respond writes the success envelope. Extra fields sit beside data so
// clients get request context without unwrapping.
func respond(c *gin.Context, data interface{}, extra gin.H) {
	body := gin.H{"code": 0, "data": data, "request_id": c.GetString("request_id")}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// respondErr maps the taxonomy onto HTTP statuses and writes the failure
// envelope.
func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch market.KindOf(err) {
	case market.ErrSymbolNotSupported, market.ErrUnparsableSymbol, market.ErrUnsupportedGranularity:
		status = http.StatusBadRequest
	case market.ErrUnknownSource:
		status = http.StatusNotFound
	case market.ErrRateLimited:
		status = http.StatusTooManyRequests
	case market.ErrUpstreamUnavailable, market.ErrUpstreamProtocol:
		status = http.StatusBadGateway
	}
	body := gin.H{"code": -1, "error": err.Error(), "request_id": c.GetString("request_id")}
	if kind := market.KindOf(err); kind != "" {
		body["kind"] = string(kind)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code": -1, "error": msg, "request_id": c.GetString("request_id"),
	})
}

func toMillis(sec int64) int64 {
	if sec == 0 {
		return 0
	}
	return sec * 1000
}

// fromMillisParam parses a millisecond query parameter into canonical
// seconds.
func fromMillisParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		badRequest(c, "parameter "+name+" must be a millisecond timestamp")
		return 0, false
	}
	return ms / 1000, true
}

func limitParam(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, "parameter limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func modeParam(c *gin.Context) (market.Mode, bool) {
	switch strings.ToLower(c.DefaultQuery("mode", "spot")) {
	case "spot":
		return market.ModeSpot, true
	case "contract":
		return market.ModeContract, true
	default:
		badRequest(c, "parameter mode must be spot or contract")
		return "", false
	}
}

func requireParams(c *gin.Context, names ...string) bool {
	for _, name := range names {
		if c.Query(name) == "" {
			badRequest(c, "parameter "+name+" is required")
			return false
		}
	}
	return true
}

func (h *handlers) health(c *gin.Context) {
	respond(c, gin.H{"status": "ok"}, nil)
}

func (h *handlers) listSources(c *gin.Context) {
	adapters := h.catalog.List()
	out := make([]gin.H, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, gin.H{
			"metadata":   a.Metadata(),
			"capability": a.Capability(),
		})
	}
	respond(c, out, gin.H{"count": len(out)})
}

func (h *handlers) describeSource(c *gin.Context) {
	desc, err := h.catalog.Describe(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, desc, nil)
}

func (h *handlers) ticker(c *gin.Context) {
	if !requireParams(c, "symbol", "source") {
		return
	}
	mode, ok := modeParam(c)
	if !ok {
		return
	}
	src := c.Query("source")

	rec, cached, err := h.svc.Ticker(c.Request.Context(), src, c.Query("symbol"), mode)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, rec, gin.H{"source": src, "mode": string(mode), "cached": cached})
}

// candleRow is the wire shape of one candle: timestamps leave in
// milliseconds.
type candleRow struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (h *handlers) candlesticks(c *gin.Context) {
	if !requireParams(c, "symbol", "bar", "source") {
		return
	}
	mode, ok := modeParam(c)
	if !ok {
		return
	}
	limit, ok := limitParam(c, 100)
	if !ok {
		return
	}
	before, ok := fromMillisParam(c, "before")
	if !ok {
		return
	}
	after, ok := fromMillisParam(c, "after")
	if !ok {
		return
	}
	src := c.Query("source")

	res, err := h.svc.Candles(c.Request.Context(), src, source.CandleRequest{
		Symbol: c.Query("symbol"),
		Bar:    c.Query("bar"),
		Limit:  limit,
		Before: before,
		After:  after,
		Mode:   mode,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	rows := make([]candleRow, 0, len(res.Candles))
	for _, cd := range res.Candles {
		rows = append(rows, candleRow{
			Time: toMillis(cd.Time), Open: cd.Open, High: cd.High,
			Low: cd.Low, Close: cd.Close, Volume: cd.Volume,
		})
	}
	respond(c, rows, gin.H{
		"source":   src,
		"mode":     string(mode),
		"bar":      res.Bar,
		"bar_used": res.BarUsed,
		"degraded": res.Degraded,
		"advisory": res.Advisory,
		"cached":   res.Cached,
		"count":    len(rows),
	})
}

// fundingJSON re-expresses a funding record with millisecond timestamps.
func fundingJSON(rec market.FundingRateRecord) gin.H {
	out := gin.H{
		"inst_id":           rec.InstID,
		"rate":              rec.Rate,
		"timestamp":         toMillis(rec.Timestamp),
		"interval_hours":    rec.IntervalHours,
		"next_funding_time": toMillis(rec.NextFundingTime),
		"quote_currency":    rec.QuoteCurrency,
	}
	if rec.PredictedRate != nil {
		out["predicted_rate"] = *rec.PredictedRate
	}
	if rec.IndexPrice != nil {
		out["index_price"] = *rec.IndexPrice
	}
	if rec.Premium != nil {
		out["premium"] = *rec.Premium
	}
	return out
}

func (h *handlers) fundingRate(c *gin.Context) {
	if !requireParams(c, "symbol", "source") {
		return
	}
	src := c.Query("source")
	rec, cached, err := h.svc.FundingRate(c.Request.Context(), src, c.Query("symbol"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, fundingJSON(rec), gin.H{"source": src, "cached": cached})
}

func (h *handlers) fundingHistory(c *gin.Context) {
	if !requireParams(c, "symbol", "source") {
		return
	}
	limit, ok := limitParam(c, 50)
	if !ok {
		return
	}
	src := c.Query("source")

	series, cached, err := h.svc.FundingHistory(c.Request.Context(), src, c.Query("symbol"), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	rows := make([]gin.H, 0, len(series))
	for _, rec := range series {
		rows = append(rows, fundingJSON(rec))
	}
	respond(c, rows, gin.H{"source": src, "cached": cached, "count": len(rows)})
}

// basisJSON re-expresses a basis record with millisecond timestamps.
func basisJSON(rec market.ContractBasisRecord) gin.H {
	out := gin.H{
		"inst_id":          rec.InstID,
		"contract_type":    string(rec.ContractType),
		"basis":            rec.Basis,
		"basis_rate":       rec.BasisRate,
		"contract_price":   rec.ContractPrice,
		"reference_symbol": rec.ReferenceSymbol,
		"reference_price":  rec.ReferencePrice,
		"timestamp":        toMillis(rec.Timestamp),
		"quote_currency":   rec.QuoteCurrency,
	}
	if rec.Tenor != "" {
		out["tenor"] = rec.Tenor
	}
	return out
}

func basisRequest(c *gin.Context) (source.BasisRequest, bool) {
	req := source.BasisRequest{
		Symbol: c.Query("symbol"),
		Tenor:  c.Query("tenor"),
	}
	switch ct := strings.ToLower(c.Query("contract_type")); ct {
	case "":
	case "perpetual":
		req.ContractType = market.ContractPerpetual
	case "futures":
		req.ContractType = market.ContractFutures
	default:
		badRequest(c, "parameter contract_type must be perpetual or futures")
		return source.BasisRequest{}, false
	}
	return req, true
}

func (h *handlers) contractBasis(c *gin.Context) {
	if !requireParams(c, "symbol", "source") {
		return
	}
	req, ok := basisRequest(c)
	if !ok {
		return
	}
	src := c.Query("source")

	rec, cached, err := h.svc.ContractBasis(c.Request.Context(), src, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, basisJSON(rec), gin.H{"source": src, "cached": cached})
}

func (h *handlers) basisHistory(c *gin.Context) {
	if !requireParams(c, "symbol", "source") {
		return
	}
	req, ok := basisRequest(c)
	if !ok {
		return
	}
	limit, ok := limitParam(c, 50)
	if !ok {
		return
	}
	src := c.Query("source")

	series, err := h.svc.BasisHistory(c.Request.Context(), src, req, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	rows := make([]gin.H, 0, len(series))
	for _, rec := range series {
		rows = append(rows, basisJSON(rec))
	}
	respond(c, rows, gin.H{"source": src, "count": len(rows)})
}

func (h *handlers) invalidate(c *gin.Context) {
	src := c.Param("id")
	var types []cache.DataType
	if raw := c.Query("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			types = append(types, cache.DataType(strings.TrimSpace(t)))
		}
	}
	n, err := h.svc.Invalidate(c.Request.Context(), src, types...)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, gin.H{"invalidated": n}, gin.H{"source": src})
}
