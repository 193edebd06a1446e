package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence"
)

// GraphRepository handles graph-related database operations.
type GraphRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewGraphRepository(db *sql.DB, logger *slog.Logger) *GraphRepository {
	return &GraphRepository{db: db, logger: logger}
}

const graphColumns = `
	id, name, description, status, nodes, edges, variables, metadata,
	owner, created_at, updated_at, published_at
`

// List returns paginated and filtered graphs. Sort fields are validated
// against an allowlist before being interpolated into the query.
func (gr *GraphRepository) List(ctx context.Context, opts persistence.ListGraphsOptions) (*persistence.GraphListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("invalid sort field: %s", opts.SortBy)
	}

	if opts.SortOrder != "asc" && opts.SortOrder != "desc" {
		return nil, fmt.Errorf("invalid sort order: %s", opts.SortOrder)
	}

	where := "WHERE deleted_at IS NULL"
	args := make([]any, 0, 4)

	if opts.Owner != "" {
		args = append(args, opts.Owner)
		where += fmt.Sprintf(" AND owner = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64

	countQuery := "SELECT COUNT(*) FROM graphs " + where
	if err := gr.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count graphs: %w", err)
	}

	args = append(args, opts.Limit+1, opts.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM graphs %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		graphColumns, where, opts.SortBy, opts.SortOrder, len(args)-1, len(args),
	)

	rows, err := gr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query graphs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			gr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	graphs := make([]*models.Graph, 0, opts.Limit)

	for rows.Next() {
		graph, err := gr.scanGraph(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan graph: %w", err)
		}

		graphs = append(graphs, graph)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating graphs: %w", err)
	}

	hasNextPage := len(graphs) > opts.Limit
	if hasNextPage {
		graphs = graphs[:opts.Limit]
	}

	return &persistence.GraphListResult{
		Graphs:      graphs,
		TotalCount:  totalCount,
		HasNextPage: hasNextPage,
	}, nil
}

// GetByID retrieves a graph by its ID. Returns (nil, nil) when absent or
// soft-deleted.
func (gr *GraphRepository) GetByID(ctx context.Context, graphID string) (*models.Graph, error) {
	query := fmt.Sprintf("SELECT %s FROM graphs WHERE id = $1 AND deleted_at IS NULL", graphColumns)

	row := gr.db.QueryRowContext(ctx, query, graphID)

	graph, err := gr.scanGraph(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan graph: %w", err)
	}

	return graph, nil
}

// Save upserts a graph.
func (gr *GraphRepository) Save(ctx context.Context, graph *models.Graph) error {
	nodesJSON, err := json.Marshal(graph.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(graph.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	variablesJSON, err := json.Marshal(graph.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	metadataJSON, err := json.Marshal(graph.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	if graph.CreatedAt.IsZero() {
		graph.CreatedAt = now
	}

	graph.UpdatedAt = now

	query := `
		INSERT INTO graphs (
			id, name, description, status, nodes, edges, variables, metadata,
			owner, created_at, updated_at, published_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`

	_, err = gr.db.ExecContext(ctx, query,
		graph.ID,
		graph.Name,
		graph.Description,
		graph.Status,
		nodesJSON,
		edgesJSON,
		variablesJSON,
		metadataJSON,
		graph.Owner,
		graph.CreatedAt,
		graph.UpdatedAt,
		graph.PublishedAt,
	)
	if err != nil {
		return persistence.NewGraphError("Save", graph.ID, err)
	}

	return nil
}

// Delete soft deletes a graph by setting deleted_at.
func (gr *GraphRepository) Delete(ctx context.Context, id string) error {
	query := "UPDATE graphs SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL"

	_, err := gr.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewGraphError("Delete", id, err)
	}

	return nil
}

func (gr *GraphRepository) scanGraph(scanner interface {
	Scan(dest ...any) error
}) (*models.Graph, error) {
	var (
		graph                                             models.Graph
		nodesJSON, edgesJSON, variablesJSON, metadataJSON []byte
	)

	err := scanner.Scan(
		&graph.ID,
		&graph.Name,
		&graph.Description,
		&graph.Status,
		&nodesJSON,
		&edgesJSON,
		&variablesJSON,
		&metadataJSON,
		&graph.Owner,
		&graph.CreatedAt,
		&graph.UpdatedAt,
		&graph.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	if nodesJSON != nil {
		if err := json.Unmarshal(nodesJSON, &graph.Nodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
	}

	if edgesJSON != nil {
		if err := json.Unmarshal(edgesJSON, &graph.Edges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
		}
	}

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &graph.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &graph.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &graph, nil
}
