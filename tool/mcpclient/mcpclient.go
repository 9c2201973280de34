// Package mcpclient adapts the mcp.Caller transport clients to the
// tool.MCPClient interface, so `tool <name> = mcp "<url>"` declarations
// can be dispatched through the existing stdio/HTTP-SSE/JSON-RPC callers
// without reinventing MCP transport code here.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streetrace-ai/streetrace/mcp"
	"github.com/streetrace-ai/streetrace/mcp/retry"
)

// Client adapts one MCP server connection (one `tool = mcp "<url>"`
// declaration) to tool.MCPClient.
type Client struct {
	caller mcp.Caller
	suite  string
	// Schema, when set, is an optional compact JSON schema excerpt for
	// the tool, surfaced in the repair prompt built on an invalid-params
	// response.
	Schema map[string]string
}

// New wraps an existing mcp.Caller transport for the given suite (server)
// name.
func New(caller mcp.Caller, suite string) *Client {
	return &Client{caller: caller, suite: suite}
}

// CallTool marshals input to JSON, invokes the MCP tool, and unmarshals
// its result back into a generic map.
//
// When the server reports JSON-RPC invalid-params (code -32602), the
// error is wrapped as a retry.RetryableError carrying an LLM-facing
// repair prompt instead of a bare transport error: agentrunner's tool
// loop surfaces RetryableError.Prompt back to the model as the tool's
// result text so the model can redo the call with corrected arguments,
// rather than the turn failing outright on a fixable argument mistake.
func (c *Client) CallTool(ctx context.Context, name string, input map[string]any) (any, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: marshal input for %s: %w", name, err)
	}
	resp, err := c.caller.CallTool(ctx, mcp.CallRequest{Suite: c.suite, Tool: name, Payload: payload})
	if err != nil {
		var rpcErr *mcp.Error
		if errors.As(err, &rpcErr) && rpcErr.Code == mcp.JSONRPCInvalidParams {
			prompt := retry.BuildRepairPrompt(name, rpcErr.Message, string(payload), c.Schema[name])
			return nil, &retry.RetryableError{Prompt: prompt, Cause: err}
		}
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return nil, fmt.Errorf("mcpclient: unmarshal result from %s: %w", name, err)
	}
	return out, nil
}
