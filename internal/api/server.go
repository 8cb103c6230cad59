// Package api exposes the operator HTTP surface: health, metrics, pool and
// pipeline introspection, the emergency stop, and the audit websocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"solana-trading-engine/internal/auth"
	"solana-trading-engine/internal/events"
	"solana-trading-engine/internal/execution"
	"solana-trading-engine/internal/pipeline"
	"solana-trading-engine/internal/pool"
	"solana-trading-engine/internal/risk"
)

// StatsProvider exposes the pipeline's running counters
type StatsProvider interface {
	Snapshot() pipeline.Stats
}

// ResultStore serves recent terminal results; nil when persistence is off
type ResultStore interface {
	RecentResults(ctx context.Context, limit int) ([]execution.Result, error)
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string
}

// Server is the operator HTTP API
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	registry   *pool.Registry
	stats      StatsProvider
	stop       *risk.EmergencyStop
	bus        *events.Bus
	jwt        *auth.JWTManager
	results    ResultStore
	bridgeOK   func() bool
	hub        *WSHub
	cfg        Config
	logger     zerolog.Logger
	startedAt  time.Time
}

// NewServer creates the API server and wires its routes
func NewServer(
	cfg Config,
	registry *pool.Registry,
	stats StatsProvider,
	stop *risk.EmergencyStop,
	bus *events.Bus,
	jwtManager *auth.JWTManager,
	results ResultStore, // can be nil if persistence is disabled
	bridgeOK func() bool, // can be nil if the AI bridge is disabled
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		registry:  registry,
		stats:     stats,
		stop:      stop,
		bus:       bus,
		jwt:       jwtManager,
		results:   results,
		bridgeOK:  bridgeOK,
		hub:       NewWSHub(bus, logger),
		cfg:       cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", s.handleMetrics)
	s.router.GET("/pools", s.handlePools)
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/results", s.handleResults)
	s.router.GET("/ws/audit", s.hub.HandleConnection)

	guarded := s.router.Group("/", auth.Middleware(s.jwt))
	guarded.POST("/emergency-stop", s.handleEngageStop)
	guarded.DELETE("/emergency-stop", s.handleClearStop)
}

// Start runs the HTTP server and the websocket hub until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"emergency_stop": s.stop.Engaged(),
	}
	if s.stop.Engaged() {
		body["status"] = "halted"
		body["stop_reason"] = s.stop.Reason()
	}
	if s.bridgeOK != nil {
		healthy := s.bridgeOK()
		body["ai_bridge"] = healthy
		if !healthy {
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) handleMetrics(c *gin.Context) {
	portfolio := s.registry.Portfolio()
	c.JSON(http.StatusOK, gin.H{
		"pipeline": s.stats.Snapshot(),
		"portfolio": gin.H{
			"total_pools":         portfolio.TotalPools,
			"total_balance":       portfolio.TotalBalance,
			"total_exposure":      portfolio.TotalExposure,
			"total_open_positions": portfolio.TotalOpenPosition,
			"daily_realized_loss": portfolio.DailyRealizedLoss,
		},
	})
}

func (s *Server) handlePools(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Portfolio())
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleResults(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence is disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	results, err := s.results.RecentResults(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read recent results")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type stopRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) handleEngageStop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	operator := c.GetString(auth.ContextKeyOperatorID)
	s.stop.Engage(req.Reason)
	s.bus.PublishEmergencyStop(true, req.Reason)
	s.logger.Warn().
		Str("operator", operator).
		Str("reason", req.Reason).
		Msg("Emergency stop engaged via API")

	c.JSON(http.StatusOK, gin.H{"engaged": true, "reason": req.Reason})
}

func (s *Server) handleClearStop(c *gin.Context) {
	operator := c.GetString(auth.ContextKeyOperatorID)
	s.stop.Clear()
	s.bus.PublishEmergencyStop(false, "")
	s.logger.Warn().Str("operator", operator).Msg("Emergency stop cleared via API")

	c.JSON(http.StatusOK, gin.H{"engaged": false})
}
