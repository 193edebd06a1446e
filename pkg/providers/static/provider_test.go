package static_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/provider"
	"github.com/genflow/genflow/pkg/providers/static"
)

func newAdapter(t *testing.T) provider.Adapter {
	t.Helper()

	adapter, err := static.NewInputFactory().Create(context.Background(), nil)
	require.NoError(t, err)

	return adapter
}

func TestAdapter_SubmitMergesValueAndInputs(t *testing.T) {
	adapter := newAdapter(t)
	ctx := context.Background()

	handle, err := adapter.Submit(ctx, provider.SubmitRequest{
		NodeID: "prompt",
		Config: map[string]any{"value": "a lighthouse at dusk"},
		Inputs: map[string]any{"seed": float64(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.CapabilityStaticInput, handle.Capability)

	update, err := adapter.CheckStatus(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusSucceeded, update.Status)
	assert.Equal(t, "a lighthouse at dusk", update.Output["value"])
	assert.Equal(t, float64(7), update.Output["seed"])
}

func TestAdapter_FailWithConfigFailsTheWork(t *testing.T) {
	adapter := newAdapter(t)
	ctx := context.Background()

	handle, err := adapter.Submit(ctx, provider.SubmitRequest{
		NodeID: "prompt",
		Config: map[string]any{"fail_with": "provider quota exhausted"},
	})
	require.NoError(t, err)

	update, err := adapter.CheckStatus(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusFailed, update.Status)
	assert.Equal(t, "provider quota exhausted", update.Error)
}

func TestAdapter_CheckStatusUnknownHandle(t *testing.T) {
	adapter := newAdapter(t)

	_, err := adapter.CheckStatus(context.Background(), provider.Handle{ID: "nope"})
	assert.Error(t, err)
}

func TestAdapter_CancelForgetsTheWork(t *testing.T) {
	adapter := newAdapter(t)
	ctx := context.Background()

	handle, err := adapter.Submit(ctx, provider.SubmitRequest{NodeID: "prompt"})
	require.NoError(t, err)

	require.NoError(t, adapter.Cancel(ctx, handle))

	_, err = adapter.CheckStatus(ctx, handle)
	assert.Error(t, err)
}
