package server

import (
	"time"

	"faqminer/internal/cache"
	"faqminer/internal/config"
	"faqminer/internal/database"
	"faqminer/internal/handlers"
	"faqminer/internal/jobs"
	"faqminer/internal/synthesis"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Server wires the HTTP API over the pipeline components
type Server struct {
	echo         *echo.Echo
	store        *database.Store
	config       *config.Config
	logger       zerolog.Logger
	cache        *cache.Cache
	orchestrator *jobs.Orchestrator
	hub          *jobs.Hub
	synthesizer  *synthesis.Synthesizer
}

// New creates a new server instance
func New(cfg *config.Config, store *database.Store, orch *jobs.Orchestrator,
	hub *jobs.Hub, synth *synthesis.Synthesizer, logger zerolog.Logger) *Server {
	return &Server{
		config:       cfg,
		store:        store,
		logger:       logger,
		cache:        cache.New(),
		orchestrator: orch,
		hub:          hub,
		synthesizer:  synth,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.HideBanner = true

	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.store.DB()))

	api.GET("/", handlers.RootHandler(s.config.Version))

	// Public FAQ surface
	api.GET("/faqs", handlers.ListFAQsHandler(s.store, s.cache))
	api.GET("/faqs/:id", handlers.GetFAQHandler(s.store))
	api.POST("/faqs/:id/view", handlers.FAQViewHandler(s.store))
	api.POST("/faqs/:id/feedback", handlers.FAQFeedbackHandler(s.store))

	// Email ingestion and processing jobs
	api.POST("/emails/import", handlers.ImportEmailsHandler(s.store, s.logger))
	api.POST("/jobs/process", handlers.TriggerProcessingHandler(s.orchestrator))
	api.GET("/jobs", handlers.ListJobsHandler(s.store))
	api.GET("/jobs/:id", handlers.JobStatusHandler(s.store))
	api.GET("/jobs/:id/events", handlers.JobEventsHandler(s.store, s.hub))

	// Admin curation
	admin := api.Group("/admin")
	admin.GET("/faqs", handlers.ListAllFAQsHandler(s.store))
	admin.PUT("/faqs/reorder", handlers.ReorderFAQsHandler(s.store, s.cache))
	admin.PUT("/faqs/:id/publish", handlers.PublishFAQHandler(s.store, s.cache))
	admin.POST("/faqs/:id/synthesize", handlers.SynthesizeFAQHandler(s.store, s.synthesizer, s.cache))
	admin.POST("/import-mailbox", handlers.TriggerMailboxImportHandler(s.config))
	admin.GET("/import-mailbox/:jobName", handlers.MailboxImportStatusHandler(s.config))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}
