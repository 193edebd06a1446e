package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/genflow/genflow/pkg/eventbus"
	"github.com/genflow/genflow/pkg/events"
	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence"
)

// Runner is the subset of the orchestrator the service layer needs for
// stop and resume. Nil when the HTTP surface runs without an embedded
// orchestrator.
type Runner interface {
	Cancel(ctx context.Context, executionID, reason, cancelledBy string) error
	Resume(ctx context.Context, executionID, resumedBy string) (*models.Execution, error)
}

// RunRequest asks for one execution of a published graph.
type RunRequest struct {
	GraphID string `json:"graph_id" validate:"required"`

	// NodeIDs narrows the run to the named nodes plus their ancestors.
	NodeIDs []string `json:"node_ids,omitempty"`

	// Debug allows running drafts; generator nodes short-circuit.
	Debug bool `json:"debug"`

	Variables map[string]any `json:"variables,omitempty"`
	Initiator string         `json:"initiator,omitempty"`
}

// ExecutionService admits run requests and answers execution queries. A run
// request is recorded as a pending execution and announced on the bus; a
// worker picks it up from there.
type ExecutionService struct {
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	runner      Runner
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewExecutionService(p persistence.Persistence, bus eventbus.EventPublisher, runner Runner, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		persistence: p,
		bus:         bus,
		runner:      runner,
		validate:    validator.New(),
		logger:      logger.With("module", "execution_service"),
	}
}

// Request validates a run request, records a pending execution, and
// publishes ExecutionRequested.
func (s *ExecutionService) Request(ctx context.Context, req RunRequest) (*models.Execution, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("RequestRun", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	g, err := s.persistence.GraphRepository().GetByID(ctx, req.GraphID)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph %s: %w", req.GraphID, err)
	}

	if g == nil {
		return nil, ErrGraphNotFound
	}

	if g.Status != models.GraphStatusPublished && !req.Debug {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotPublished, req.GraphID)
	}

	for _, nodeID := range req.NodeIDs {
		if g.NodeByID(nodeID) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTargetNode, nodeID)
		}
	}

	execution := models.NewExecution(uuid.New().String(), req.GraphID)
	execution.TargetNodes = req.NodeIDs
	execution.Debug = req.Debug
	execution.Variables = req.Variables

	if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution requested",
		"execution_id", execution.ID,
		"graph_id", req.GraphID,
		"target_nodes", req.NodeIDs,
		"debug", req.Debug,
	)

	if s.bus != nil {
		event := events.ExecutionRequested{
			BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, req.GraphID),
			ExecutionID: execution.ID,
			TargetNodes: req.NodeIDs,
			Debug:       req.Debug,
			Variables:   req.Variables,
			Initiator:   req.Initiator,
		}

		if err := s.bus.Publish(ctx, execution.ID, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish execution request",
				"execution_id", execution.ID, "error", err)
		}
	}

	return execution, nil
}

// FetchByID returns the authoritative execution record. This is the pull
// side of the status channel: observers call it after a stream drop.
func (s *ExecutionService) FetchByID(ctx context.Context, executionID string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

// ListByGraph returns recent executions of one graph.
func (s *ExecutionService) ListByGraph(ctx context.Context, graphID string, limit int) ([]*models.Execution, error) {
	return s.persistence.ExecutionRepository().ListByGraph(ctx, graphID, limit)
}

// ListByStatus returns executions in the given state.
func (s *ExecutionService) ListByStatus(ctx context.Context, st models.ExecutionStatus) ([]*models.Execution, error) {
	switch st {
	case models.ExecutionStatusPending, models.ExecutionStatusRunning,
		models.ExecutionStatusCompleted, models.ExecutionStatusFailed,
		models.ExecutionStatusCancelled:
	default:
		return nil, NewValidationError("ListByStatus", "INVALID_STATUS",
			fmt.Sprintf("invalid execution status '%s'", st), ErrInvalidStatus)
	}

	return s.persistence.ExecutionRepository().ListByStatus(ctx, st)
}

// Stop cancels a live execution through the attached runner.
func (s *ExecutionService) Stop(ctx context.Context, executionID, reason, stoppedBy string) error {
	if s.runner == nil {
		return ErrRunnerUnavailable
	}

	return s.runner.Cancel(ctx, executionID, reason, stoppedBy)
}

// Resume restarts a failed execution through the attached runner.
func (s *ExecutionService) Resume(ctx context.Context, executionID, resumedBy string) (*models.Execution, error) {
	if s.runner == nil {
		return nil, ErrRunnerUnavailable
	}

	return s.runner.Resume(ctx, executionID, resumedBy)
}
