package httpgen

import (
	"context"
	"fmt"
	"net/http"

	"github.com/genflow/genflow/pkg/provider"
)

// Adapter implements provider.Adapter over a submit-then-poll HTTP API.
type Adapter struct {
	capability string
	config     Config
	client     *http.Client
}

func NewAdapter(capability string, config Config) *Adapter {
	return &Adapter{
		capability: capability,
		config:     config,
		client:     newClient(config.Timeout),
	}
}

func (a *Adapter) Capability() string {
	return a.capability
}

// Submit POSTs the node config merged with its gathered inputs and extracts
// the prediction id from the response.
func (a *Adapter) Submit(ctx context.Context, req provider.SubmitRequest) (provider.Handle, error) {
	payload := BuildPayload(req)

	response, err := doJSON(ctx, a.client, http.MethodPost, a.config.SubmitURL, a.config.Headers, payload)
	if err != nil {
		return provider.Handle{}, fmt.Errorf("submit failed: %w", err)
	}

	id, ok := response[a.config.IDField].(string)
	if !ok || id == "" {
		return provider.Handle{}, fmt.Errorf("submit response missing %q field", a.config.IDField)
	}

	return provider.Handle{ID: id, Capability: a.capability}, nil
}

// CheckStatus GETs the prediction and maps the provider's status vocabulary
// onto the canonical one. Unknown statuses are treated as still processing
// so a provider adding states does not fail running work.
func (a *Adapter) CheckStatus(ctx context.Context, handle provider.Handle) (provider.StatusUpdate, error) {
	response, err := doJSON(ctx, a.client, http.MethodGet, joinURL(a.config.StatusURL, handle.ID), a.config.Headers, nil)
	if err != nil {
		return provider.StatusUpdate{}, fmt.Errorf("status check failed: %w", err)
	}

	update := provider.StatusUpdate{Status: a.mapStatus(response)}

	if output, ok := response["output"].(map[string]any); ok {
		update.Output = output
	} else if output, present := response["output"]; present && output != nil {
		update.Output = map[string]any{"output": output}
	}

	if errMessage, ok := response["error"].(string); ok {
		update.Error = errMessage
	}

	if progress, ok := response["progress"].(float64); ok {
		update.Progress = int(progress)
	}

	if update.Status == provider.StatusSucceeded {
		update.Progress = 100
	}

	return update, nil
}

// Cancel POSTs to the cancel endpoint when one is configured.
func (a *Adapter) Cancel(ctx context.Context, handle provider.Handle) error {
	if a.config.CancelURL == "" {
		return nil
	}

	_, err := doJSON(ctx, a.client, http.MethodPost, joinURL(a.config.CancelURL, handle.ID), a.config.Headers, nil)
	if err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}

	return nil
}

func (a *Adapter) mapStatus(response map[string]any) provider.Status {
	raw, _ := response["status"].(string)

	if mapped, ok := a.config.StatusMap[raw]; ok {
		raw = mapped
	}

	switch provider.Status(raw) {
	case provider.StatusSucceeded, provider.StatusFailed, provider.StatusCanceled:
		return provider.Status(raw)
	default:
		return provider.StatusProcessing
	}
}

// BuildPayload is the request body Submit sends: the node's config under
// "input" plus the dependency outputs keyed by input port. Exposed so debug
// executions can record what would have been sent.
func BuildPayload(req provider.SubmitRequest) map[string]any {
	return map[string]any{
		"input":        req.Config,
		"dependencies": req.Inputs,
		"execution_id": req.ExecutionID,
		"node_id":      req.NodeID,
	}
}
