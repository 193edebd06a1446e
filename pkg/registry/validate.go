package registry

import (
	"fmt"
	"strings"

	"github.com/genflow/genflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateGraphConfigs checks every enabled node's config against the JSON
// schema published by its capability's provider factory. Unknown
// capabilities are reported as errors so they fail before dispatch.
func (r *Registry) ValidateGraphConfigs(g *models.Graph) error {
	var problems []string

	for _, node := range g.Nodes {
		if !node.Enabled {
			continue
		}

		schema, ok := r.Schema(node.Capability)
		if !ok {
			problems = append(problems, fmt.Sprintf("node %s: capability %q not registered", node.ID, node.Capability))

			continue
		}

		if schema == nil {
			continue
		}

		if err := validateAgainstSchema(schema, node.Config); err != nil {
			problems = append(problems, fmt.Sprintf("node %s: %v", node.ID, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("graph config validation failed: %s", strings.Join(problems, "; "))
	}

	return nil
}

func validateAgainstSchema(schema, config map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)

	if config == nil {
		config = map[string]any{}
	}

	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid config: %s", strings.Join(details, "; "))
	}

	return nil
}
