package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/services"
)

// createItineraryHandler handles POST /api/v1/itineraries.
// Creates the itinerary document, starts generation, and returns immediately
// with the ids the client needs to subscribe for events.
func (s *Server) createItineraryHandler(c *echo.Context) error {
	// 1. Bind HTTP request
	var req CreateItineraryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// 2. Transform to service input
	input := services.CreateItineraryInput{
		UserID:      req.UserID,
		Origin:      req.Origin,
		Destination: req.Destination,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Currency:    req.Currency,
		Themes:      req.Themes,
		Settings:    req.settings(),
	}

	// 3. Call service
	it, executionID, err := s.initService.CreateItinerary(c.Request().Context(), input)
	if err != nil {
		return mapServiceError(err)
	}

	// 4. Return response
	return c.JSON(http.StatusAccepted, &CreateItineraryResponse{
		ItineraryID:            it.ID,
		ExecutionID:            executionID,
		Version:                it.Version,
		Status:                 "initialized",
		Channel:                events.ItineraryChannel(it.ID),
		EventsURL:              "/api/v1/ws",
		EstimatedCompletionSec: estimateCompletionSec(len(it.Days)),
		InitialStructure:       it,
	})
}

// estimateCompletionSec is a coarse client-facing estimate scaled by trip
// length. Clients use it for progress UI only, never for timeouts.
func estimateCompletionSec(days int) int {
	const floor = 30
	est := days * 15
	if est < floor {
		return floor
	}
	return est
}

// getItineraryHandler handles GET /api/v1/itineraries/:id.
func (s *Server) getItineraryHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "itinerary id is required")
	}

	view, err := s.itineraryService.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// listRevisionsHandler handles GET /api/v1/itineraries/:id/revisions.
func (s *Server) listRevisionsHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "itinerary id is required")
	}

	revs, err := s.itineraryService.ListRevisions(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &RevisionsResponse{ItineraryID: id, Revisions: revs})
}

// getRevisionHandler handles GET /api/v1/itineraries/:id/revisions/:version.
func (s *Server) getRevisionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "itinerary id is required")
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
	}

	rev, err := s.itineraryService.GetRevision(c.Request().Context(), id, version)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, rev)
}

// cancelItineraryHandler handles POST /api/v1/itineraries/:id/cancel.
func (s *Server) cancelItineraryHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "itinerary id is required")
	}

	if err := s.itineraryService.Cancel(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &CancelResponse{ItineraryID: id, Status: "cancelling"})
}
