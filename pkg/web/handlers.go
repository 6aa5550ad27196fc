// Package web provides HTTP handlers and REST API endpoints for journeys and their runs.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/journey/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIHandlers struct {
	journeyService *services.Journey
	validator      *validator.Validate
}

func NewAPIHandlers(journeyService *services.Journey, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		journeyService: journeyService,
		validator:      validator,
	}
}

// Register mounts the journey routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	j := router.Group("/journeys")
	j.Get("/", h.GetJourneys)
	j.Post("/", h.CreateJourney)
	j.Get("/runs/:runId", h.GetRun)
	j.Get("/:id", h.GetJourney)
	j.Get("/:id/runs", h.GetJourneyRuns)
	j.Post("/:id/trigger", h.TriggerJourney)

	router.Get("/health", h.HealthCheck)
}

// MetricsHandler serves the collectors of gatherer in the Prometheus text format.
func MetricsHandler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	journeys, err := h.journeyService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"journeys":    journeys,
		"total_count": len(journeys),
	})
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	journey, err := h.journeyService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journey)
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.journeyService.CreateFromDocument(c.Context(), req.Document())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(CreateJourneyResponse{JourneyID: created.ID})
}

func (h *APIHandlers) TriggerJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req TriggerJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Request body must contain context")
	}

	run, err := h.journeyService.Trigger(c.Context(), id, req.RunContext())
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Location("/journeys/runs/" + run.ID)

	return c.Status(fiber.StatusAccepted).JSON(TriggerJourneyResponse{RunID: run.ID})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	runID := c.Params("runId")
	if runID == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.journeyService.FetchRun(c.Context(), runID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewRunResponse(run))
}

func (h *APIHandlers) GetJourneyRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	runs, err := h.journeyService.ListRuns(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        NewRunResponses(runs),
		"total_count": len(runs),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.journeyService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Journey API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Journey API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
