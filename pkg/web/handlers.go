// Package web provides HTTP handlers and REST API endpoints for chain and
// run management.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/promptline/promptline/pkg/services"
)

type APIHandlers struct {
	chainService *services.Chain
	runService   *services.Run
	validator    *validator.Validate
}

func NewAPIHandlers(
	chainService *services.Chain,
	runService *services.Run,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		chainService: chainService,
		runService:   runService,
		validator:    validator,
	}
}

func (h *APIHandlers) GetChains(c fiber.Ctx) error {
	chains, err := h.chainService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"chains":      chains,
		"total_count": len(chains),
	})
}

func (h *APIHandlers) GetChain(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Chain ID is required")
	}

	chain, err := h.chainService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(chain)
}

func (h *APIHandlers) CreateChain(c fiber.Ctx) error {
	var req CreateChainRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.chainService.Create(c.Context(), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateChain(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Chain ID is required")
	}

	var req UpdateChainRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.chainService.Update(c.Context(), id, req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteChain(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Chain ID is required")
	}

	if err := h.chainService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerRun accepts a trigger payload for a chain. The caller identity
// comes from the bearer token, never from the request body. The run is
// dispatched to a worker; 202 reflects that execution is asynchronous.
func (h *APIHandlers) TriggerRun(c fiber.Ctx) error {
	chainID := c.Params("id")
	if chainID == "" {
		return badRequest(c, "Chain ID is required")
	}

	userID, ok := c.Locals(userIDLocal).(string)
	if !ok || userID == "" {
		return unauthorized(c, "Missing caller identity")
	}

	var req TriggerRunRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	run, err := h.runService.Trigger(c.Context(), chainID, userID, req.Inputs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	results, err := h.runService.StepResults(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"run_id":       id,
		"step_results": results,
	})
}

func (h *APIHandlers) GetChainRuns(c fiber.Ctx) error {
	chainID := c.Params("id")
	if chainID == "" {
		return badRequest(c, "Chain ID is required")
	}

	runs, err := h.runService.ListByChain(c.Context(), chainID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"chain_id": chainID,
		"runs":     runs,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.chainService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Promptline API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Promptline API is healthy"
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
