package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations. Node
// results and job snapshots are stored as JSONB so the full state of a run
// survives worker restarts.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, graph_id, status, target_nodes, debug, node_results, jobs,
	last_failed_node_id, error_message, variables, metadata,
	created_at, started_at, completed_at
`

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.Execution, error) {
	query := fmt.Sprintf("SELECT %s FROM executions WHERE id = $1", executionColumns)

	row := er.db.QueryRowContext(ctx, query, executionID)

	execution, err := er.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Save upserts an execution with its full node-result and job state.
func (er *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	targetNodesJSON, err := json.Marshal(execution.TargetNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal target nodes: %w", err)
	}

	nodeResultsJSON, err := json.Marshal(execution.NodeResults)
	if err != nil {
		return fmt.Errorf("failed to marshal node results: %w", err)
	}

	jobsJSON, err := json.Marshal(execution.Jobs)
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	variablesJSON, err := json.Marshal(execution.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	metadataJSON, err := json.Marshal(execution.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, graph_id, status, target_nodes, debug, node_results, jobs,
			last_failed_node_id, error_message, variables, metadata,
			created_at, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			target_nodes = EXCLUDED.target_nodes,
			debug = EXCLUDED.debug,
			node_results = EXCLUDED.node_results,
			jobs = EXCLUDED.jobs,
			last_failed_node_id = EXCLUDED.last_failed_node_id,
			error_message = EXCLUDED.error_message,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID,
		execution.GraphID,
		execution.Status,
		targetNodesJSON,
		execution.Debug,
		nodeResultsJSON,
		jobsJSON,
		execution.LastFailedNodeID,
		execution.ErrorMessage,
		variablesJSON,
		metadataJSON,
		execution.CreatedAt,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// ListByGraph retrieves executions for a graph, newest first.
func (er *ExecutionRepository) ListByGraph(ctx context.Context, graphID string, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(
		"SELECT %s FROM executions WHERE graph_id = $1 ORDER BY created_at DESC LIMIT $2",
		executionColumns,
	)

	return er.queryExecutions(ctx, query, graphID, limit)
}

// ListByStatus retrieves executions in the given state, newest first. Used
// on worker startup to pick up runs interrupted by a crash.
func (er *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM executions WHERE status = $1 ORDER BY created_at DESC",
		executionColumns,
	)

	return er.queryExecutions(ctx, query, status)
}

// Delete removes an execution record.
func (er *ExecutionRepository) Delete(ctx context.Context, id string) error {
	_, err := er.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", id)
	if err != nil {
		return persistence.NewExecutionError("Delete", id, err)
	}

	return nil
}

func (er *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := er.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (er *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.Execution, error) {
	var (
		execution models.Execution

		targetNodesJSON, nodeResultsJSON, jobsJSON, variablesJSON, metadataJSON []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.GraphID,
		&execution.Status,
		&targetNodesJSON,
		&execution.Debug,
		&nodeResultsJSON,
		&jobsJSON,
		&execution.LastFailedNodeID,
		&execution.ErrorMessage,
		&variablesJSON,
		&metadataJSON,
		&execution.CreatedAt,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.NodeResults = make(map[string]*models.NodeResult)
	execution.Jobs = make(map[string]*models.Job)

	if targetNodesJSON != nil {
		if err := json.Unmarshal(targetNodesJSON, &execution.TargetNodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target nodes: %w", err)
		}
	}

	if nodeResultsJSON != nil {
		if err := json.Unmarshal(nodeResultsJSON, &execution.NodeResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node results: %w", err)
		}
	}

	if jobsJSON != nil {
		if err := json.Unmarshal(jobsJSON, &execution.Jobs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal jobs: %w", err)
		}
	}

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &execution.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &execution.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &execution, nil
}
