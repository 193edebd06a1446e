// Package persistence provides the data storage abstraction for graphs and
// executions.
package persistence

import (
	"context"

	"github.com/genflow/genflow/pkg/models"
)

// ListGraphsOptions filters and paginates graph listings.
type ListGraphsOptions struct {
	Owner     string
	Status    *models.GraphStatus
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// GraphListResult carries one page of graphs.
type GraphListResult struct {
	Graphs      []*models.Graph
	TotalCount  int64
	HasNextPage bool
}

// GraphRepository stores pipeline graph definitions. GetByID returns
// (nil, nil) when no graph exists with the given id.
type GraphRepository interface {
	List(ctx context.Context, opts ListGraphsOptions) (*GraphListResult, error)
	GetByID(ctx context.Context, id string) (*models.Graph, error)
	Save(ctx context.Context, graph *models.Graph) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution state. The stored execution is the
// single source of truth for resume and status reconciliation, so Save must
// persist node results and job snapshots in full.
type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	Save(ctx context.Context, execution *models.Execution) error
	ListByGraph(ctx context.Context, graphID string, limit int) ([]*models.Execution, error)
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error)
	Delete(ctx context.Context, id string) error
}

type Persistence interface {
	GraphRepository() GraphRepository
	ExecutionRepository() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
