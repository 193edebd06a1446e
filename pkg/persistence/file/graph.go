package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence"
)

// GraphRepository stores each graph as one JSON file under <root>/graphs.
type GraphRepository struct {
	root string
}

func NewGraphRepository(root string) *GraphRepository {
	return &GraphRepository{root: root}
}

// List returns paginated and filtered graphs with in-memory operations.
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

	root := os.DirFS(gr.root + "/graphs")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list graph files: %w", err)
	}

	if len(jsonFiles) == 0 {
		return &persistence.GraphListResult{
			Graphs:      make([]*models.Graph, 0),
			TotalCount:  0,
			HasNextPage: false,
		}, nil
	}

	filtered := make([]*models.Graph, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		graphID := file[:len(file)-5] // Remove .json extension

		graph, err := gr.GetByID(ctx, graphID)
		if err != nil {
			return nil, fmt.Errorf("failed to load graph %s: %w", graphID, err)
		}

		if graph == nil {
			continue
		}

		if opts.Owner != "" && graph.Owner != opts.Owner {
			continue
		}

		if opts.Status != nil && graph.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, graph)
	}

	gr.sortGraphs(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(filtered) {
		return &persistence.GraphListResult{
			Graphs:      make([]*models.Graph, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.GraphListResult{
		Graphs:      filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func (gr *GraphRepository) sortGraphs(graphs []*models.Graph, sortBy, sortOrder string) {
	sort.Slice(graphs, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = graphs[i].UpdatedAt.Before(graphs[j].UpdatedAt)
		case "name":
			less = graphs[i].Name < graphs[j].Name
		default:
			less = graphs[i].CreatedAt.Before(graphs[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID retrieves a graph by its ID. Returns (nil, nil) when absent.
func (gr *GraphRepository) GetByID(_ context.Context, graphID string) (*models.Graph, error) {
	filePath := filepath.Clean(path.Join(gr.root, "graphs", graphID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch graph %s: %w", graphID, err)
	}

	var graph models.Graph

	err = json.Unmarshal(body, &graph)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph %s: %w", graphID, err)
	}

	return &graph, nil
}

// Save writes a graph to the file system.
func (gr *GraphRepository) Save(_ context.Context, graph *models.Graph) error {
	err := os.MkdirAll(gr.root+"/graphs", 0750)
	if err != nil {
		return fmt.Errorf("failed to create graphs directory: %w", err)
	}

	now := time.Now().UTC()
	if graph.CreatedAt.IsZero() {
		graph.CreatedAt = now
	}

	graph.UpdatedAt = now

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph %s: %w", graph.ID, err)
	}

	filePath := path.Join(gr.root+"/graphs", graph.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a graph by its ID. Deleting a missing graph is a no-op.
func (gr *GraphRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(gr.root+"/graphs", id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete graph %s: %w", id, err)
	}

	return nil
}
