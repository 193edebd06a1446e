// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"log/slog"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/providers/httpgen"
	"github.com/genflow/genflow/pkg/providers/static"
	"github.com/genflow/genflow/pkg/providers/webhookdeliver"
	"github.com/genflow/genflow/pkg/registry"
)

func registerProviderPlugins(ctx context.Context, reg *registry.Registry, pluginsPath string) {
	plugins, err := reg.LoadProviderPlugins(ctx, pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range plugins {
		reg.RegisterProvider(plugin)
	}
}

func registerNativeProviders(reg *registry.Registry) {
	reg.RegisterProvider(static.NewInputFactory())
	reg.RegisterProvider(static.NewFactory(models.CapabilityTransform))
	reg.RegisterProvider(webhookdeliver.NewFactory())

	reg.RegisterProvider(httpgen.NewFactory(models.CapabilityImageGenerate,
		"HTTP Image Generation", "Submit-then-poll image generation over JSON/HTTP"))
	reg.RegisterProvider(httpgen.NewFactory(models.CapabilityVideoGenerate,
		"HTTP Video Generation", "Submit-then-poll video generation over JSON/HTTP"))
	reg.RegisterProvider(httpgen.NewFactory(models.CapabilityTextGenerate,
		"HTTP Text Generation", "Submit-then-poll text generation over JSON/HTTP"))
}

// NewRegistry builds the provider registry: plugin-loaded adapters first,
// then the built-ins. A plugin registered for a built-in capability is
// replaced by the native factory, not the other way around.
func NewRegistry(ctx context.Context, log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerProviderPlugins(ctx, reg, pluginsPath)
	registerNativeProviders(reg)

	return reg
}
