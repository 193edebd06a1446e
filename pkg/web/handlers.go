package web

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/registry"
	"github.com/genflow/genflow/pkg/services"
	"github.com/genflow/genflow/pkg/status"
)

const streamHeartbeatInterval = 15 * time.Second

type APIHandlers struct {
	graphService     *services.GraphService
	executionService *services.ExecutionService
	broadcaster      *status.Broadcaster
	deadLetter       deadletter.Store
	registry         *registry.Registry
	validator        *validator.Validate
}

func NewAPIHandlers(
	graphService *services.GraphService,
	executionService *services.ExecutionService,
	broadcaster *status.Broadcaster,
	deadLetter deadletter.Store,
	reg *registry.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		graphService:     graphService,
		executionService: executionService,
		broadcaster:      broadcaster,
		deadLetter:       deadLetter,
		registry:         reg,
		validator:        validate,
	}
}

func (h *APIHandlers) GetGraphs(c fiber.Ctx) error {
	req, err := h.parseListGraphsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.graphService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"graphs":        result.Graphs,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

func (h *APIHandlers) parseListGraphsRequest(c fiber.Ctx) (*services.ListGraphsRequest, error) {
	req := &services.ListGraphsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.Owner = c.Query("owner")

	if statusStr := c.Query("status"); statusStr != "" {
		graphStatus := models.GraphStatus(statusStr)
		req.Status = &graphStatus
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Graph ID is required")
	}

	g, err := h.graphService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(g)
}

func (h *APIHandlers) CreateGraph(c fiber.Ctx) error {
	var req CreateGraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	g := &models.Graph{
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
	}

	if g.Nodes == nil {
		g.Nodes = []*models.Node{}
	}

	if g.Edges == nil {
		g.Edges = []*models.Edge{}
	}

	created, err := h.graphService.Create(c.Context(), g)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateGraph(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Graph ID is required")
	}

	var req UpdateGraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.graphService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	updated, err := h.graphService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteGraph(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Graph ID is required")
	}

	if err := h.graphService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishGraph(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Graph ID is required")
	}

	published, err := h.graphService.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

// CreateExecution admits a run request. The work is asynchronous, so the
// response is 202 with the pending execution record.
func (h *APIHandlers) CreateExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Request(c.Context(), services.RunRequest{
		GraphID:   req.GraphID,
		NodeIDs:   req.NodeIDs,
		Debug:     req.Debug,
		Variables: req.Variables,
		Initiator: req.Initiator,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

// GetExecution returns the authoritative execution record. Observers call
// this to reconcile after a dropped stream.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	if graphID := c.Query("graph_id"); graphID != "" {
		limit := 0

		if limitStr := c.Query("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil {
				return badRequest(c, "Invalid limit")
			}

			limit = parsed
		}

		executions, err := h.executionService.ListByGraph(c.Context(), graphID, limit)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(executions)
	}

	if statusStr := c.Query("status"); statusStr != "" {
		executions, err := h.executionService.ListByStatus(c.Context(), models.ExecutionStatus(statusStr))
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(executions)
	}

	return badRequest(c, "Either graph_id or status query parameter is required")
}

func (h *APIHandlers) StopExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req StopExecutionRequest

	_ = c.Bind().JSON(&req) // body is optional

	if err := h.executionService.Stop(c.Context(), id, req.Reason, req.StoppedBy); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req ResumeExecutionRequest

	_ = c.Bind().JSON(&req) // body is optional

	resumed, err := h.executionService.Resume(c.Context(), id, req.ResumedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(resumed)
}

// StreamExecution pushes status snapshots over SSE. Delivery is
// best-effort: on any gap the client reconciles with GET /executions/:id.
func (h *APIHandlers) StreamExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	snapshots, cancel := h.broadcaster.Subscribe(id)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	initial := status.FromExecution(execution)

	c.RequestCtx().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		if err := writeSnapshotEvent(w, initial); err != nil {
			return
		}

		heartbeat := time.NewTicker(streamHeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case snapshot, ok := <-snapshots:
				if !ok {
					return
				}

				if err := writeSnapshotEvent(w, snapshot); err != nil {
					return
				}

				if snapshot.Status.IsTerminal() {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}

				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

func writeSnapshotEvent(w *bufio.Writer, snapshot status.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	if _, err := w.WriteString("event: snapshot\ndata: " + string(payload) + "\n\n"); err != nil {
		return err
	}

	return w.Flush()
}

// GetDeadLetter lists jobs that exhausted their retries.
func (h *APIHandlers) GetDeadLetter(c fiber.Ctx) error {
	entries, err := h.deadLetter.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	if entries == nil {
		entries = []deadletter.Entry{}
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.graphService.HealthCheck(c.Context())

	healthStatus := "unhealthy"
	message := "GenFlow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		healthStatus = "healthy"
		message = "GenFlow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  healthStatus,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
