package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/mcp/retry"
)

func TestRegistryCallDispatchesToBuiltin(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin("echo", func(ctx context.Context, input map[string]any) (any, error) {
		return input["text"], nil
	})

	out, err := r.Call(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

type fakeMCPClient struct {
	result any
	err    error
}

func (f *fakeMCPClient) CallTool(ctx context.Context, name string, input map[string]any) (any, error) {
	return f.result, f.err
}

func TestRegistryCallDispatchesToMCP(t *testing.T) {
	r := NewRegistry()
	r.RegisterMCP("search", &fakeMCPClient{result: map[string]any{"ok": true}})

	out, err := r.Call(context.Background(), "search", map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)
}

func TestRegistryCallUnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), "missing", nil)
	assert.Error(t, err)
}

// TestCallMCPPreservesRetryableErrorType verifies that an MCP
// invalid-params failure surfaces as a *retry.RetryableError through
// Registry.CallMCP unwrapped, rather than being folded into the generic
// toolerrors.ToolError chain (which would erase its type and the repair
// prompt agentrunner needs).
func TestCallMCPPreservesRetryableErrorType(t *testing.T) {
	r := NewRegistry()
	want := &retry.RetryableError{Prompt: "Redo the operation with valid params."}
	r.RegisterMCP("search", &fakeMCPClient{err: want})

	_, err := r.Call(context.Background(), "search", nil)
	require.Error(t, err)

	var retryable *retry.RetryableError
	require.True(t, errors.As(err, &retryable))
	assert.Equal(t, want.Prompt, retryable.Prompt)
}

func TestCallMCPWrapsOtherErrorsInToolError(t *testing.T) {
	r := NewRegistry()
	r.RegisterMCP("search", &fakeMCPClient{err: errors.New("boom")})

	_, err := r.Call(context.Background(), "search", nil)
	require.Error(t, err)

	var retryable *retry.RetryableError
	assert.False(t, errors.As(err, &retryable))
	assert.Contains(t, err.Error(), "mcp tool search failed")
}
