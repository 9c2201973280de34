package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/mcp"
	"github.com/streetrace-ai/streetrace/mcp/retry"
)

type fakeCaller struct {
	resp mcp.CallResponse
	err  error
}

func (f *fakeCaller) CallTool(ctx context.Context, req mcp.CallRequest) (mcp.CallResponse, error) {
	return f.resp, f.err
}

func TestCallToolUnmarshalsResult(t *testing.T) {
	caller := &fakeCaller{resp: mcp.CallResponse{Result: json.RawMessage(`{"ok":true}`)}}
	c := New(caller, "suite")

	out, err := c.CallTool(context.Background(), "search", map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)
}

func TestCallToolWrapsInvalidParamsAsRetryable(t *testing.T) {
	caller := &fakeCaller{err: &mcp.Error{Code: mcp.JSONRPCInvalidParams, Message: "missing required field q"}}
	c := New(caller, "suite")

	_, err := c.CallTool(context.Background(), "search", map[string]any{})
	require.Error(t, err)

	var retryable *retry.RetryableError
	require.True(t, errors.As(err, &retryable))
	assert.Contains(t, retryable.Prompt, "search")
	assert.Contains(t, retryable.Prompt, "missing required field q")
}

func TestCallToolPassesThroughOtherErrors(t *testing.T) {
	caller := &fakeCaller{err: &mcp.Error{Code: mcp.JSONRPCInternalError, Message: "server exploded"}}
	c := New(caller, "suite")

	_, err := c.CallTool(context.Background(), "search", map[string]any{})
	require.Error(t, err)

	var retryable *retry.RetryableError
	assert.False(t, errors.As(err, &retryable))
}
