package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/CristiGvl/ecfanctl/internal/fan"
	"github.com/CristiGvl/ecfanctl/internal/platform"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
	"github.com/CristiGvl/ecfanctl/internal/view"
)

// requestTimeout bounds the device I/O done by one request.
const requestTimeout = 10 * time.Second

// Options holds the components served by the API.
type Options struct {
	Controller *fan.Controller
	Hub        *view.Hub
	Poller     *telemetry.Poller
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	// AccessLog enables fiber's request logger.
	AccessLog bool
	Simulated bool
}

// Server represents the API server
type Server struct {
	app        *fiber.App
	controller *fan.Controller
	hub        *view.Hub
	poller     *telemetry.Poller
	log        *slog.Logger
	simulated  bool
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "ecfanctl",
		AppName:               "ecfanctl",
		DisableStartupMessage: true,
	})

	// Middleware
	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "*",
		MaxAge:       86400, // 24 hours
	}))

	server := &Server{
		app:        app,
		controller: opts.Controller,
		hub:        opts.Hub,
		poller:     opts.Poller,
		log:        opts.Logger.With("component", "api"),
		simulated:  opts.Simulated,
	}

	server.setupRoutes(opts.Metrics)
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(metrics http.Handler) {
	api := s.app.Group("/api")

	// Fan control endpoints
	api.Get("/fans", s.getFans)
	api.Get("/fan/:id", s.getFan)
	api.Post("/fan/:id/mode", s.setFanMode)
	api.Post("/fan/:id/level", s.setFanLevel)
	api.Post("/fan/:id/curve/:kind/:index", s.editCurve)
	api.Post("/fan/:id/curves/refresh", s.refreshCurves)

	// Power mode
	api.Get("/power_mode", s.getPowerMode)
	api.Post("/power_mode", s.setPowerMode)

	// Telemetry
	api.Get("/telemetry", s.getTelemetry)
	api.Get("/telemetry/interval", s.getPollInterval)
	api.Post("/telemetry/interval", s.setPollInterval)

	api.Get("/events", s.getEvents)

	// Health check
	api.Get("/health", s.healthCheck)

	if metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
}

// Start starts the API server
func (s *Server) Start(address string) error {
	s.log.Info("http server listening", "address", address)
	return s.app.Listen(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Health check endpoint
func (s *Server) healthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp := fiber.Map{
		"status":    "ok",
		"platform":  platform.GetOS(),
		"simulated": s.simulated,
		"fans":      s.controller.Fans(),
		"timestamp": time.Now().Unix(),
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		resp["hostname"] = info.Hostname
		resp["kernel"] = info.KernelVersion
		resp["uptime"] = info.Uptime
	}
	return c.JSON(resp)
}
