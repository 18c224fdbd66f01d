package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/sensorlink/services/api/config"
	"github.com/02loveslollipop/sensorlink/services/api/db"
	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/command"
	"github.com/02loveslollipop/sensorlink/services/api/internal/ingest"
	"github.com/02loveslollipop/sensorlink/services/api/internal/liveness"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

// Deps are the components the handlers drive.
type Deps struct {
	Store     db.Gateway
	Ingestor  *ingest.Ingestor
	Commands  *command.Channel
	Actuators *actuator.Store
	Liveness  *liveness.Tracker
	Channels  []sensor.ChannelSpec

	// Optional. Routes are only mounted when set.
	Events  http.Handler
	Metrics http.Handler

	Log *slog.Logger
	Now func() time.Time
}

// Server bundles router and dependencies for the device bridge.
type Server struct {
	cfg    config.Config
	deps   Deps
	log    *slog.Logger
	now    func() time.Time
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	server := &Server{cfg: cfg, deps: deps, log: deps.Log, now: deps.Now, engine: engine}
	if server.log == nil {
		server.log = slog.Default()
	}
	if server.now == nil {
		server.now = time.Now
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	if s.deps.Events != nil {
		s.engine.GET("/ws", gin.WrapH(s.deps.Events))
	}

	api := s.engine.Group("/api")

	// Device and dashboard reads
	{
		api.GET("/sensor-data", s.handleListSamples)
		api.GET("/sensor-data/latest", s.handleLatestSample)
		api.GET("/last-update", s.handleLastUpdate)
		api.GET("/esp32-status", s.handleDeviceStatus)
		api.GET("/led-states", s.handleGetActuatorStates)
	}

	// Board endpoints. The firmware cannot send a token.
	{
		api.POST("/sensor-data", s.handleIngest)
		api.GET("/command", s.handlePollCommand)
		api.POST("/ack", s.handleAck)
		api.POST("/led-states", s.handleSyncActuatorStates)
	}

	// Dashboard writes
	write := api.Group("")
	if s.cfg.BearerToken != "" {
		write.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}
	write.POST("/command", s.handleSetCommand)
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
