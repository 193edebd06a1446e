package httpgen

import (
	"context"

	"github.com/genflow/genflow/pkg/provider"
)

// Factory creates httpgen adapters for one generation capability.
type Factory struct {
	capability  string
	name        string
	description string
}

func NewFactory(capability, name, description string) provider.Factory {
	return &Factory{capability: capability, name: name, description: description}
}

func (f *Factory) Create(_ context.Context, config map[string]any) (provider.Adapter, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}

	return NewAdapter(f.capability, cfg), nil
}

func (f *Factory) Capability() string {
	return f.capability
}

func (f *Factory) Name() string {
	return f.name
}

func (f *Factory) Description() string {
	return f.description
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"submit_url": map[string]any{
				"type":        "string",
				"description": "Endpoint receiving the prediction request",
			},
			"status_url": map[string]any{
				"type":        "string",
				"description": "Endpoint reporting prediction status; the prediction id is appended",
			},
			"cancel_url": map[string]any{
				"type":        "string",
				"description": "Optional endpoint for cancelling a prediction",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers sent on every call, e.g. authorization",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Per-call timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
			"id_field": map[string]any{
				"type":        "string",
				"description": "Response field carrying the prediction id",
				"default":     "id",
			},
			"status_map": map[string]any{
				"type":        "object",
				"description": "Maps provider status strings onto processing/succeeded/failed/canceled",
			},
		},
		"required": []string{"submit_url", "status_url"},
	}
}
