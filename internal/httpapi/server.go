// Package httpapi exposes the aggregation core over HTTP. All request and
// response timestamps at this boundary are Unix milliseconds; conversion to
// the core's canonical seconds happens in the handlers.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"marketgrid/config"
	"marketgrid/internal/cache"
	"marketgrid/internal/market"
	"marketgrid/internal/registry"
	"marketgrid/internal/source"
	"marketgrid/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// MarketService is the slice of the cache coordinator the handlers consume.
type MarketService interface {
	Candles(ctx context.Context, sourceName string, req source.CandleRequest) (market.CandleResult, error)
	Ticker(ctx context.Context, sourceName, symbol string, mode market.Mode) (market.TickerRecord, bool, error)
	FundingRate(ctx context.Context, sourceName, symbol string) (market.FundingRateRecord, bool, error)
	FundingHistory(ctx context.Context, sourceName, symbol string, limit int) ([]market.FundingRateRecord, bool, error)
	ContractBasis(ctx context.Context, sourceName string, req source.BasisRequest) (market.ContractBasisRecord, bool, error)
	BasisHistory(ctx context.Context, sourceName string, req source.BasisRequest, limit int) ([]market.ContractBasisRecord, error)
	Invalidate(ctx context.Context, sourceName string, types ...cache.DataType) (int, error)
}

// SourceCatalog is the slice of the registry the handlers consume.
type SourceCatalog interface {
	List() []source.Adapter
	Describe(name string) (registry.Description, error)
}

// Server wires the gin engine and its lifecycle.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	log    *logger.Entry
}

// New assembles the router. Middleware order: recovery first, then request
// id, CORS and the access log.
func New(cfg config.ServerConfig, catalog SourceCatalog, svc MarketService) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), corsMiddleware(cfg.CORSOrigins), accessLog())

	h := &handlers{catalog: catalog, svc: svc}
	api := engine.Group("/api")
	{
		api.GET("/health", h.health)
		api.GET("/sources", h.listSources)
		api.GET("/sources/:id", h.describeSource)
		api.GET("/ticker", h.ticker)
		api.GET("/candlesticks", h.candlesticks)
		api.GET("/funding-rate", h.fundingRate)
		api.GET("/funding-rate/history", h.fundingHistory)
		api.GET("/contract-basis", h.contractBasis)
		api.GET("/contract-basis/history", h.basisHistory)
		api.DELETE("/cache/:id", h.invalidate)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout.Std(),
			WriteTimeout: cfg.WriteTimeout.Std(),
		},
		log: logger.GetLogger().WithComponent("http_server"),
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails. It blocks.
func (s *Server) Run() error {
	s.log.WithFields(logger.Fields{"addr": s.http.Addr}).Info("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodDelete, http.MethodOptions}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
