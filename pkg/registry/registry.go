// Package registry provides provider adapter registration and lookup by
// capability, including plugin loading and config schema validation.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"

	"github.com/genflow/genflow/pkg/provider"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]provider.Factory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]provider.Factory),
	}
}

// RegisterProvider registers a factory under its capability tag. A later
// registration for the same capability replaces the earlier one.
func (r *Registry) RegisterProvider(factory provider.Factory) {
	r.factories[factory.Capability()] = factory
}

// CreateAdapter builds an adapter for the given capability.
func (r *Registry) CreateAdapter(ctx context.Context, capability string, config map[string]any) (provider.Adapter, error) {
	factory, ok := r.factories[capability]
	if !ok {
		return nil, fmt.Errorf("capability %q not registered", capability)
	}

	return factory.Create(ctx, config)
}

// Capabilities returns the registered capability tags, sorted.
func (r *Registry) Capabilities() []string {
	capabilities := make([]string, 0, len(r.factories))
	for capability := range r.factories {
		capabilities = append(capabilities, capability)
	}

	sort.Strings(capabilities)

	return capabilities
}

// Schema returns the config schema for a capability, if registered.
func (r *Registry) Schema(capability string) (map[string]any, bool) {
	factory, ok := r.factories[capability]
	if !ok {
		return nil, false
	}

	return factory.Schema(), true
}

// HealthCheck reports whether the registry has at least one provider.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "no providers registered", false
	}

	return fmt.Sprintf("%d providers registered", len(r.factories)), true
}

// LoadProviderPlugins loads provider factories from .so plugins under
// pluginsPath/providers. Each plugin exports a symbol named "Provider".
func (r *Registry) LoadProviderPlugins(ctx context.Context, pluginsPath string) ([]provider.Factory, error) {
	return loadPlugin[provider.Factory](ctx, r.logger, pluginsPath, "Provider")
}

func loadPlugin[T any](ctx context.Context, logger *slog.Logger, pluginsPath, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.InfoContext(ctx, "Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has wrong type", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.InfoContext(ctx, "Loaded provider plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
