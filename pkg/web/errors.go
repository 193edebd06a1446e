package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/genflow/genflow/pkg/execution"
	"github.com/genflow/genflow/pkg/persistence"
	"github.com/genflow/genflow/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and engine errors onto problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	var validationErr *execution.ValidationError
	if errors.As(err, &validationErr) {
		return badRequest(c, validationErr.Error())
	}

	switch {
	case errors.Is(err, services.ErrGraphNotFound) || persistence.IsGraphNotFound(err):
		return notFound(c, "graph not found")

	case errors.Is(err, services.ErrExecutionNotFound) || persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case errors.Is(err, execution.ErrExecutionNotActive):
		return conflict(c, "execution is not active")

	case errors.Is(err, execution.ErrExecutionNotResumable):
		return conflict(c, "execution is not in a resumable state")

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return conflict(c, err.Error())

	case errors.Is(err, services.ErrRunnerUnavailable):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("runner_unavailable").
			WithDetail("this deployment has no attached execution runner")

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		return internalError(c, err)
	}
}
