// Package services implements the application service layer between the HTTP
// API and the pipeline, store, and event subsystems.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tripforge/tripforge/pkg/models"
	"github.com/tripforge/tripforge/pkg/pipeline"
	"github.com/tripforge/tripforge/pkg/store"
)

// Trip request bounds.
const (
	MaxTripDays       = 30
	MaxThemes         = 10
	MaxDestinationLen = 200
)

var validBudgetTiers = map[string]bool{"": true, "budget": true, "standard": true, "premium": true}
var validPaces = map[string]bool{"": true, "relaxed": true, "balanced": true, "packed": true}

// CreateItineraryInput is the validated service input for a new generation.
type CreateItineraryInput struct {
	UserID      string
	Origin      string
	Destination string
	StartDate   string
	EndDate     string
	Currency    string
	Themes      []string
	Settings    models.Settings
}

// InitService accepts trip requests: it validates them, persists the initial
// itinerary document, and hands the itinerary to the orchestrator. The
// initial document already carries placeholder days, so polling clients see
// a well-formed plan before the first phase completes.
type InitService struct {
	store        store.Store
	orchestrator *pipeline.Orchestrator
	logger       *slog.Logger
}

// NewInitService creates the initialization service.
func NewInitService(st store.Store, orch *pipeline.Orchestrator) *InitService {
	return &InitService{
		store:        st,
		orchestrator: orch,
		logger:       slog.With("service", "init"),
	}
}

// CreateItinerary validates the request, writes the version 1 document, and
// starts generation. Returns the created document and the execution id.
func (s *InitService) CreateItinerary(ctx context.Context, input CreateItineraryInput) (*models.Itinerary, string, error) {
	span, err := s.validate(input)
	if err != nil {
		return nil, "", err
	}

	it := s.buildInitial(input, span)

	if err := s.store.Create(ctx, it); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, "", ErrAlreadyExists
		}
		return nil, "", fmt.Errorf("failed to create itinerary: %w", err)
	}
	if err := s.store.SaveRevision(ctx, it); err != nil {
		s.logger.Warn("Failed to archive initial revision", "itinerary_id", it.ID, "error", err)
	}

	executionID, err := s.orchestrator.Start(it.ID, it.UserID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrTooManyGenerations):
			return nil, "", ErrBusy
		case errors.Is(err, pipeline.ErrDraining):
			return nil, "", ErrShuttingDown
		default:
			return nil, "", fmt.Errorf("failed to start generation: %w", err)
		}
	}

	s.logger.Info("Itinerary created",
		"itinerary_id", it.ID,
		"execution_id", executionID,
		"destination", it.Destination,
		"days", span)
	return it, executionID, nil
}

// validate checks the request and returns the trip length in days.
func (s *InitService) validate(input CreateItineraryInput) (int, error) {
	if input.Destination == "" {
		return 0, NewValidationError("destination", "is required")
	}
	if len(input.Destination) > MaxDestinationLen {
		return 0, NewValidationError("destination", "is too long")
	}
	if input.UserID == "" {
		return 0, NewValidationError("user_id", "is required")
	}
	span, err := models.DaySpan(input.StartDate, input.EndDate)
	if err != nil {
		return 0, NewValidationError("dates", err.Error())
	}
	if span > MaxTripDays {
		return 0, NewValidationError("dates", fmt.Sprintf("trip exceeds %d days", MaxTripDays))
	}
	if len(input.Themes) > MaxThemes {
		return 0, NewValidationError("themes", fmt.Sprintf("at most %d themes allowed", MaxThemes))
	}
	if input.Currency != "" && len(input.Currency) != 3 {
		return 0, NewValidationError("currency", "must be a 3-letter code")
	}
	if !validBudgetTiers[input.Settings.BudgetTier] {
		return 0, NewValidationError("budget_tier", "must be budget, standard, or premium")
	}
	if !validPaces[input.Settings.Pace] {
		return 0, NewValidationError("pace", "must be relaxed, balanced, or packed")
	}
	if input.Settings.Party.Adults < 1 {
		return 0, NewValidationError("party", "at least one adult is required")
	}
	if input.Settings.Party.Children < 0 {
		return 0, NewValidationError("party", "children cannot be negative")
	}
	return span, nil
}

// buildInitial assembles the version 1 document with placeholder days.
func (s *InitService) buildInitial(input CreateItineraryInput, span int) *models.Itinerary {
	start, _ := time.Parse(models.DateLayout, input.StartDate)

	days := make([]models.Day, span)
	for i := 0; i < span; i++ {
		days[i] = models.Day{
			DayNumber: i + 1,
			Date:      start.AddDate(0, 0, i).Format(models.DateLayout),
			Location:  input.Destination,
			Nodes:     []models.Node{},
		}
	}

	return &models.Itinerary{
		ID:          uuid.New().String(),
		UserID:      input.UserID,
		Origin:      input.Origin,
		Destination: input.Destination,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Currency:    input.Currency,
		Themes:      input.Themes,
		Days:        days,
		Settings:    input.Settings,
		Agents:      map[string]models.AgentStatus{},
	}
}
