// Package webhookdeliver provides the delivery adapter that POSTs a finished
// artifact to a target URL. Delivery is attempted once per submission; the
// job queue's generic retry policy is the only retry applied.
package webhookdeliver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/provider"
	"github.com/google/uuid"
)

const defaultTimeoutSeconds = 30

type Adapter struct {
	client *http.Client
}

func NewAdapter() *Adapter {
	return &Adapter{client: &http.Client{Timeout: timeout()}}
}

func (a *Adapter) Capability() string {
	return models.CapabilityWebhookDelivery
}

// Submit performs the delivery synchronously; the returned handle is already
// terminal, so the first status check resolves the job.
func (a *Adapter) Submit(ctx context.Context, req provider.SubmitRequest) (provider.Handle, error) {
	target, ok := req.Config["url"].(string)
	if !ok || target == "" {
		return provider.Handle{}, errors.New("missing required field 'url'")
	}

	headers := make(map[string]string)

	if raw, ok := req.Config["headers"].(map[string]any); ok {
		for k, v := range raw {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	payload := map[string]any{
		"execution_id": req.ExecutionID,
		"node_id":      req.NodeID,
		"artifacts":    req.Inputs,
	}

	if err := a.post(ctx, target, headers, payload); err != nil {
		return provider.Handle{}, fmt.Errorf("delivery to %s failed: %w", target, err)
	}

	return provider.Handle{
		ID:         uuid.New().String(),
		Capability: a.Capability(),
		Metadata:   map[string]any{"url": target, "delivered": true},
	}, nil
}

func (a *Adapter) CheckStatus(_ context.Context, handle provider.Handle) (provider.StatusUpdate, error) {
	delivered, _ := handle.Metadata["delivered"].(bool)
	if !delivered {
		return provider.StatusUpdate{Status: provider.StatusFailed, Error: "delivery was not performed"}, nil
	}

	url, _ := handle.Metadata["url"].(string)

	return provider.StatusUpdate{
		Status:   provider.StatusSucceeded,
		Progress: 100,
		Output:   map[string]any{"delivered_to": url},
	}, nil
}

// Cancel is a no-op: delivery either happened at submit time or not at all.
func (a *Adapter) Cancel(_ context.Context, _ provider.Handle) error {
	return nil
}
