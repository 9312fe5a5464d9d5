// Package api exposes the HTTP surface: itinerary submission and reads, the
// WebSocket event stream, health, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tripforge/tripforge/pkg/database"
	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/pipeline"
	"github.com/tripforge/tripforge/pkg/services"
)

// Server is the HTTP server.
type Server struct {
	echo *echo.Echo
	http *http.Server

	initService      *services.InitService
	itineraryService *services.ItineraryService
	orchestrator     *pipeline.Orchestrator
	connManager      *events.ConnectionManager
	dbClient         *database.Client // nil with the memory store
}

// NewServer wires the HTTP server and its routes.
func NewServer(
	initService *services.InitService,
	itineraryService *services.ItineraryService,
	orchestrator *pipeline.Orchestrator,
	connManager *events.ConnectionManager,
	dbClient *database.Client,
) *Server {
	s := &Server{
		initService:      initService,
		itineraryService: itineraryService,
		orchestrator:     orchestrator,
		connManager:      connManager,
		dbClient:         dbClient,
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(requestLogger())

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	v1.POST("/itineraries", s.createItineraryHandler)
	v1.GET("/itineraries/:id", s.getItineraryHandler)
	v1.GET("/itineraries/:id/revisions", s.listRevisionsHandler)
	v1.GET("/itineraries/:id/revisions/:version", s.getRevisionHandler)
	v1.POST("/itineraries/:id/cancel", s.cancelItineraryHandler)
	v1.GET("/ws", s.wsHandler)

	s.echo = e
	return s
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
