// Package static provides a provider adapter that resolves immediately with
// configured output. It backs input nodes and is the workhorse of engine tests.
package static

import (
	"context"
	"errors"
	"sync"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/provider"
	"github.com/google/uuid"
)

// Adapter resolves every submission on the first status check. When the node
// config carries "fail_with", the work reports failed with that message
// instead, which makes error paths testable without an external provider.
type Adapter struct {
	capability string

	mu      sync.Mutex
	pending map[string]provider.StatusUpdate
}

func NewAdapter(capability string) *Adapter {
	return &Adapter{
		capability: capability,
		pending:    make(map[string]provider.StatusUpdate),
	}
}

func (a *Adapter) Capability() string {
	return a.capability
}

func (a *Adapter) Submit(_ context.Context, req provider.SubmitRequest) (provider.Handle, error) {
	id := uuid.New().String()

	update := provider.StatusUpdate{
		Status:   provider.StatusSucceeded,
		Progress: 100,
		Output:   map[string]any{},
	}

	if value, ok := req.Config["value"]; ok {
		update.Output["value"] = value
	}

	for port, input := range req.Inputs {
		update.Output[port] = input
	}

	if message, ok := req.Config["fail_with"].(string); ok && message != "" {
		update = provider.StatusUpdate{Status: provider.StatusFailed, Error: message}
	}

	a.mu.Lock()
	a.pending[id] = update
	a.mu.Unlock()

	return provider.Handle{ID: id, Capability: a.capability}, nil
}

func (a *Adapter) CheckStatus(_ context.Context, handle provider.Handle) (provider.StatusUpdate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	update, ok := a.pending[handle.ID]
	if !ok {
		return provider.StatusUpdate{}, errors.New("unknown handle: " + handle.ID)
	}

	return update, nil
}

func (a *Adapter) Cancel(_ context.Context, handle provider.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.pending, handle.ID)

	return nil
}

// Factory creates static adapters for a capability.
type Factory struct {
	capability string
}

func NewFactory(capability string) provider.Factory {
	return &Factory{capability: capability}
}

// NewInputFactory returns the factory serving input nodes.
func NewInputFactory() provider.Factory {
	return NewFactory(models.CapabilityStaticInput)
}

func (f *Factory) Create(_ context.Context, _ map[string]any) (provider.Adapter, error) {
	return NewAdapter(f.capability), nil
}

func (f *Factory) Capability() string {
	return f.capability
}

func (f *Factory) Name() string {
	return "Static"
}

func (f *Factory) Description() string {
	return "Resolves immediately with the configured value merged with its inputs"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"description": "Value emitted on the node's output",
			},
			"fail_with": map[string]any{
				"type":        "string",
				"description": "When set, the node fails with this message instead of succeeding",
			},
		},
	}
}
