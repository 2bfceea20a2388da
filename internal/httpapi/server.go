// Package httpapi implements the REST surface spec.md §6 defines, using
// gin-gonic/gin, with a mutex-free Server exposing an explicit Run/Shutdown
// and context-driven graceful shutdown.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"oracleflow/internal/admission"
	"oracleflow/internal/aggregate"
	"oracleflow/internal/config"
	"oracleflow/internal/domain"
	"oracleflow/internal/logger"
	"oracleflow/internal/merkle"
	"oracleflow/internal/metrics"
	"oracleflow/internal/optioncache"
	"oracleflow/internal/ratelimit"
	"oracleflow/internal/realtime"
	"oracleflow/internal/store"
)

// Pinger reports whether a dependency is reachable, for handleHealth's
// per-dependency readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server hosts oracleflow's REST API and the three WebSocket channel
// families that share its listener.
type Server struct {
	cfg         *config.Config
	log         *logger.Entry
	admission   *admission.Pipeline
	engine      *aggregate.Engine
	merkleCache *merkle.Cache
	optionCache *optioncache.Cache
	store       *store.Store
	bus         Pinger
	limiter     *ratelimit.Limiter

	lightspeed *realtime.LightspeedHub
	publish    *realtime.PublishHub
	merkleFeed *realtime.MerkleHub

	httpServer *http.Server
}

// New constructs a Server wiring together the admission pipeline,
// aggregation engine, Merkle cache, store and the realtime WS hubs built
// on top of them. bus is probed by handleHealth but never published
// through directly; the admission pipeline owns that path.
func New(cfg *config.Config, log *logger.Log, adm *admission.Pipeline, engine *aggregate.Engine, merkleCache *merkle.Cache, optionCache *optioncache.Cache, st *store.Store, bus Pinger, limiter *ratelimit.Limiter) *Server {
	return &Server{
		cfg:         cfg,
		log:         log.WithComponent("httpapi"),
		admission:   adm,
		engine:      engine,
		merkleCache: merkleCache,
		optionCache: optionCache,
		store:       st,
		bus:         bus,
		limiter:     limiter,
		lightspeed:  realtime.NewLightspeedHub(engine, log),
		publish:     realtime.NewPublishHub(adm, log),
		merkleFeed:  realtime.NewMerkleHub(merkleCache, st, []domain.Network{domain.NetworkMainnet, domain.NetworkTestnet}, log),
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	if s.cfg.Mode == config.ModeProd {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogMiddleware())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	data := router.Group("/data")
	data.Use(s.rateLimitMiddleware(ratelimit.ClassPublish))
	data.POST("/publish_entry", s.handlePublishEntry)
	data.POST("/publish_future_entry", s.handlePublishFutureEntry)

	public := router.Group("")
	public.Use(s.rateLimitMiddleware(ratelimit.ClassPublic))
	public.GET("/data/:base/:quote", s.handleAggregate)
	public.GET("/data/:base/:quote/history", s.handleHistory)
	public.GET("/data/:base/:quote/ohlc", s.handleOHLC)
	public.GET("/node/publishers", s.handlePublishers)
	public.GET("/node/merkle_feeds/options/:instrument", s.handleMerkleOption)
	public.GET("/node/merkle_feeds/options/:instrument/price", s.handleMerkleOptionPrice)
	public.GET("/node/merkle_feeds/proof/:option_hash", s.handleMerkleProofByHash)
	public.GET("/node/funding_rate/instruments", s.handleFundingRateInstruments)
	public.GET("/node/funding_rate/:pair/history", s.handleFundingRateHistory)
	public.GET("/node/funding_rate/:pair", s.handleFundingRate)
	public.GET("/node/open_interest/:pair/history", s.handleOpenInterestHistory)
	public.GET("/node/open_interest/:pair", s.handleOpenInterest)

	ws := router.Group("/node/v1")
	ws.Use(s.rateLimitMiddleware(ratelimit.ClassPublic))
	ws.GET("/data/subscribe", gin.WrapH(s.lightspeed))
	ws.GET("/data/publish", gin.WrapH(s.publish))
	ws.GET("/merkle_feeds/subscribe", gin.WrapH(s.merkleFeed))

	return router, nil
}

// Shutdown gracefully stops the server; exposed for callers that want to
// drive shutdown outside of Run's context cancellation.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
