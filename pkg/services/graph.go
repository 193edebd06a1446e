package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/genflow/genflow/pkg/graph"
	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence"
)

// GraphService owns the graph lifecycle: CRUD while in draft, then a
// one-way publish transition that freezes the graph for execution.
type GraphService struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewGraphService(p persistence.Persistence) *GraphService {
	return &GraphService{
		persistence: p,
		validate:    validator.New(),
	}
}

// HealthCheck reports the persistence layer's health.
func (s *GraphService) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListGraphsRequest contains options for listing graphs.
type ListGraphsRequest struct {
	Limit  int
	Offset int

	Owner  string
	Status *models.GraphStatus

	SortBy    string
	SortOrder string
}

// ListGraphsResponse contains the result of listing graphs.
type ListGraphsResponse struct {
	Graphs      []*models.Graph `json:"graphs"`
	TotalCount  int64           `json:"total_count"`
	HasNextPage bool            `json:"has_next_page"`
}

// List retrieves graphs with filtering, sorting, and pagination.
func (s *GraphService) List(ctx context.Context, req ListGraphsRequest) (*ListGraphsResponse, error) {
	if err := s.normalizeListRequest(&req); err != nil {
		return nil, err
	}

	result, err := s.persistence.GraphRepository().List(ctx, persistence.ListGraphsOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		Owner:     req.Owner,
		Status:    req.Status,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	return &ListGraphsResponse{
		Graphs:      result.Graphs,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (s *GraphService) normalizeListRequest(req *ListGraphsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}
	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"ListGraphs",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"ListGraphs",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil &&
		*req.Status != models.GraphStatusDraft &&
		*req.Status != models.GraphStatusPublished {
		return NewValidationError(
			"ListGraphs",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", *req.Status),
			ErrInvalidStatus,
		)
	}

	req.Owner = strings.TrimSpace(req.Owner)

	return nil
}

// FetchByID retrieves a graph by its ID.
func (s *GraphService) FetchByID(ctx context.Context, id string) (*models.Graph, error) {
	g, err := s.persistence.GraphRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if g == nil {
		return nil, ErrGraphNotFound
	}

	return g, nil
}

// Create adds a new draft graph.
func (s *GraphService) Create(ctx context.Context, g *models.Graph) (*models.Graph, error) {
	if g == nil {
		return nil, ErrGraphNil
	}

	now := time.Now().UTC()
	g.ID = uuid.New().String()
	g.CreatedAt = now
	g.UpdatedAt = now

	if g.Status == "" {
		g.Status = models.GraphStatusDraft
	}

	if err := s.validateGraph(g); err != nil {
		return nil, err
	}

	if err := s.persistence.GraphRepository().Save(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create graph: %w", err)
	}

	return g, nil
}

// Update replaces a draft graph's definition. Published graphs are frozen.
func (s *GraphService) Update(ctx context.Context, graphID string, g *models.Graph) (*models.Graph, error) {
	if g == nil {
		return nil, ErrGraphNil
	}

	existing, err := s.persistence.GraphRepository().GetByID(ctx, graphID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, ErrGraphNotFound
	}

	if existing.Status == models.GraphStatusPublished {
		return nil, ErrCannotModifyPublished
	}

	g.ID = graphID
	g.Status = existing.Status
	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = time.Now().UTC()

	if err := s.validateGraph(g); err != nil {
		return nil, err
	}

	if err := s.persistence.GraphRepository().Save(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to update graph: %w", err)
	}

	return g, nil
}

// Delete removes a graph by its ID.
func (s *GraphService) Delete(ctx context.Context, graphID string) error {
	existing, err := s.persistence.GraphRepository().GetByID(ctx, graphID)
	if err != nil {
		return err
	}

	if existing == nil {
		return ErrGraphNotFound
	}

	if err := s.persistence.GraphRepository().Delete(ctx, graphID); err != nil {
		return fmt.Errorf("failed to delete graph: %w", err)
	}

	return nil
}

// Publish freezes a graph for execution. Publishing is one-way; editing a
// published pipeline means creating a new graph.
func (s *GraphService) Publish(ctx context.Context, graphID string) (*models.Graph, error) {
	g, err := s.persistence.GraphRepository().GetByID(ctx, graphID)
	if err != nil {
		return nil, err
	}

	if g == nil {
		return nil, ErrGraphNotFound
	}

	if g.Status == models.GraphStatusPublished {
		return nil, ErrAlreadyPublished
	}

	if err := s.validateForPublishing(g); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g.Status = models.GraphStatusPublished
	g.PublishedAt = &now
	g.UpdatedAt = now

	if err := s.persistence.GraphRepository().Save(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to publish graph: %w", err)
	}

	return g, nil
}

func (s *GraphService) validateGraph(g *models.Graph) error {
	if err := s.validate.Struct(g); err != nil {
		return NewValidationError("validateGraph", "INVALID_GRAPH", err.Error(), ErrInvalidRequest)
	}

	if err := graph.Validate(g); err != nil {
		return NewValidationError("validateGraph", "INVALID_GRAPH_STRUCTURE", err.Error(), ErrInvalidEdgeData)
	}

	return nil
}

func (s *GraphService) validateForPublishing(g *models.Graph) error {
	if g.Name == "" {
		return ErrGraphNameRequired
	}

	if len(g.Nodes) == 0 {
		return ErrNodesRequired
	}

	return s.validateGraph(g)
}
