package webhookdeliver

import (
	"context"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/provider"
)

type Factory struct{}

func NewFactory() provider.Factory {
	return &Factory{}
}

func (f *Factory) Create(_ context.Context, _ map[string]any) (provider.Adapter, error) {
	return NewAdapter(), nil
}

func (f *Factory) Capability() string {
	return models.CapabilityWebhookDelivery
}

func (f *Factory) Name() string {
	return "Webhook Delivery"
}

func (f *Factory) Description() string {
	return "Delivers finished artifacts to a target URL with a single HTTP POST"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Delivery target URL",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers sent with the delivery, e.g. authorization",
			},
		},
		"required": []string{"url"},
	}
}
