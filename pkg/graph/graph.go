// Package graph provides dependency analysis over generation graphs:
// topological ordering, dependency lookup, and pre-dispatch validation.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/genflow/genflow/pkg/models"
)

// CycleError is returned when a graph contains at least one cycle. Nodes
// holds the ids that never reached zero in-degree.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph contains a cycle involving nodes: %s", strings.Join(e.Nodes, ", "))
}

// TopologicalOrder returns every node id exactly once, sources before
// targets, using Kahn's algorithm. A cycle yields *CycleError; this must be
// caught before dispatch, never discovered as a runtime deadlock.
func TopologicalOrder(g *models.Graph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, node := range g.Nodes {
		inDegree[node.ID] = 0
	}

	dependents := dependentsIndex(g)

	for _, edge := range g.Edges {
		target := edge.TargetNode()
		if _, ok := inDegree[target]; ok {
			inDegree[target]++
		}
	}

	queue := make([]string, 0, len(g.Nodes))

	for _, node := range g.Nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order := make([]string, 0, len(g.Nodes))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		remaining := make([]string, 0)

		for _, node := range g.Nodes {
			if inDegree[node.ID] > 0 {
				remaining = append(remaining, node.ID)
			}
		}

		sort.Strings(remaining)

		return nil, &CycleError{Nodes: remaining}
	}

	return order, nil
}

// DependenciesOf returns the set of node ids that feed nodeID.
func DependenciesOf(g *models.Graph, nodeID string) map[string]struct{} {
	deps := make(map[string]struct{})

	for _, edge := range g.Edges {
		if edge.TargetNode() == nodeID {
			deps[edge.SourceNode()] = struct{}{}
		}
	}

	return deps
}

// DependentsOf returns the set of node ids fed by nodeID.
func DependentsOf(g *models.Graph, nodeID string) map[string]struct{} {
	deps := make(map[string]struct{})

	for _, edge := range g.Edges {
		if edge.SourceNode() == nodeID {
			deps[edge.TargetNode()] = struct{}{}
		}
	}

	return deps
}

// Validate checks edge endpoints, port id form, and acyclicity. It is a
// pure function of the graph.
func Validate(g *models.Graph) error {
	nodeIDs := make(map[string]struct{}, len(g.Nodes))
	for _, node := range g.Nodes {
		if _, dup := nodeIDs[node.ID]; dup {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}

		nodeIDs[node.ID] = struct{}{}
	}

	for _, edge := range g.Edges {
		sourceNode, _, ok := models.ParsePortID(edge.SourcePort)
		if !ok {
			return fmt.Errorf("edge %s: malformed source port %q", edge.ID, edge.SourcePort)
		}

		targetNode, _, ok := models.ParsePortID(edge.TargetPort)
		if !ok {
			return fmt.Errorf("edge %s: malformed target port %q", edge.ID, edge.TargetPort)
		}

		if _, ok := nodeIDs[sourceNode]; !ok {
			return fmt.Errorf("edge %s: unknown source node %q", edge.ID, sourceNode)
		}

		if _, ok := nodeIDs[targetNode]; !ok {
			return fmt.Errorf("edge %s: unknown target node %q", edge.ID, targetNode)
		}
	}

	_, err := TopologicalOrder(g)

	return err
}

// Ancestors returns the transitive dependency closure of the given node ids,
// including the ids themselves. Used to scope partial runs.
func Ancestors(g *models.Graph, nodeIDs []string) map[string]struct{} {
	closure := make(map[string]struct{})
	stack := append([]string(nil), nodeIDs...)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := closure[current]; seen {
			continue
		}

		closure[current] = struct{}{}

		for dep := range DependenciesOf(g, current) {
			stack = append(stack, dep)
		}
	}

	return closure
}

func dependentsIndex(g *models.Graph) map[string][]string {
	index := make(map[string][]string)

	for _, edge := range g.Edges {
		source := edge.SourceNode()
		index[source] = append(index[source], edge.TargetNode())
	}

	return index
}
