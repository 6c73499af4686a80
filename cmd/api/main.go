package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/audit"
	"github.com/tradeassist/engine/internal/config"
	"github.com/tradeassist/engine/internal/db"
	"github.com/tradeassist/engine/internal/endpoint"
	"github.com/tradeassist/engine/internal/metrics"
	"github.com/tradeassist/engine/internal/store"
)

// APIServer wires the HTTP surface on top of the Command Endpoint: the
// chat/command route, the ASSISTED_LIVE trade-ticket inbox, and the eval
// dashboard. There is no other product behind this binary.
type APIServer struct {
	router      *gin.Engine
	db          *db.DB
	config      *config.Config
	port        string
	rateLimiter *RateLimiterMiddleware
	command     *endpoint.Endpoint
	store       *store.Store
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load or validate configuration")
	}

	ctx := context.Background()
	database, err := db.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer database.Close()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	commandEndpoint, err := buildCommandEndpoint(database)
	if err != nil {
		log.Error().Err(err).Msg("command endpoint disabled: failed to wire dependencies")
	}

	server := &APIServer{
		router:  gin.Default(),
		db:      database,
		config:  cfg,
		port:    getPort(),
		command: commandEndpoint,
		store:   store.New(database.Pool()),
	}

	server.setupMiddleware()
	server.setupRoutes()
	server.start()
}

func (s *APIServer) setupMiddleware() {
	allowedOrigins := s.config.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:8080"}
	}
	corsConfig := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Tenant-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	s.router.Use(cors.New(corsConfig))

	// Prometheus metrics middleware (before request logger to capture all requests)
	s.router.Use(metrics.GinMiddleware())

	// Audit logging middleware (logs security-relevant events)
	auditLogger := audit.NewLogger(s.db.Pool(), true)
	s.router.Use(AuditLoggingMiddleware(auditLogger))

	s.router.Use(requestLogger())
	s.router.Use(gin.Recovery())
}

func (s *APIServer) setupRoutes() {
	s.rateLimiter = NewRateLimiterMiddleware(DefaultRateLimiterConfig())
	s.rateLimiter.StartCleanupWorker(5 * time.Minute)
	s.router.Use(s.rateLimiter.GlobalMiddleware())

	// Prometheus metrics endpoint (no API prefix, no rate limiting)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/status", s.handleStatus)

		// Command endpoint (natural-language trade/portfolio requests,
		// confirm/cancel, and DAG dispatch)
		s.setupCommandRoutes(v1)

		// ASSISTED_LIVE trade-ticket inbox
		s.setupTicketRoutes(v1)

		// Eval dashboard
		s.setupEvalRoutes(v1)
	}

	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "tradeassist engine",
			"version": config.Version,
			"status":  "running",
		})
	})
}

func (s *APIServer) start() {
	srv := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", s.port).
			Str("version", config.Version).
			Msg("Starting API server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API server...")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("API server stopped")
}

func (s *APIServer) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"error":   "database connection failed",
			"version": config.Version,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": config.Version,
		"uptime":  time.Since(startTime).String(),
	})
}

func (s *APIServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "operational",
		"version": config.Version,
		"uptime":  time.Since(startTime).String(),
		"components": gin.H{
			"database": "healthy",
			"api":      "healthy",
		},
	})
}

// requestLogger logs each HTTP request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logEvent := log.Info()
		if statusCode >= 400 {
			logEvent = log.Warn()
		}
		if statusCode >= 500 {
			logEvent = log.Error()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

var startTime = time.Now()

func getPort() string {
	if port := os.Getenv("API_PORT"); port != "" {
		return port
	}
	return "8080"
}
