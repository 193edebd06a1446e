// Package models defines the core domain models for graph-based generation pipelines.
package models

import "time"

// GraphStatus represents the lifecycle state of a graph.
type GraphStatus string

const (
	GraphStatusDraft     GraphStatus = "draft"     // Editable, not executable
	GraphStatusPublished GraphStatus = "published" // Frozen, executable
)

// Graph represents one version of a generation pipeline: the node set plus
// the edge set. A graph must be acyclic; Validate in pkg/graph enforces that
// before any execution is created.
type Graph struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      GraphStatus    `json:"status"      validate:"required"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}
