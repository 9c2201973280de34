// Package tool is the tool registry (builtin Go functions and MCP-backed
// tools) agentrunner dispatches `tool` declarations to. Grounded on the
// teacher's runtime/agent/tools metadata shape and
// runtime/agent/toolerrors error chain.
package tool

import (
	"context"
	"errors"

	"github.com/streetrace-ai/streetrace/mcp/retry"
	"github.com/streetrace-ai/streetrace/toolerrors"
)

// Func is a builtin tool implementation: takes JSON-decoded input,
// returns a JSON-encodable result or a *toolerrors.ToolError.
type Func func(ctx context.Context, input map[string]any) (any, error)

// Registry resolves a DSL `tool <name>` declaration's Ref to a callable.
type Registry struct {
	builtins map[string]Func
	mcp      map[string]MCPClient
}

// MCPClient is the subset of MCP tool invocation agentrunner needs; the
// real implementation lives in tool/mcpclient and wraps an mcp.Caller.
type MCPClient interface {
	CallTool(ctx context.Context, name string, input map[string]any) (any, error)
}

// NewRegistry builds an empty registry; callers register builtins and MCP
// clients before handing it to agentrunner.
func NewRegistry() *Registry {
	return &Registry{builtins: map[string]Func{}, mcp: map[string]MCPClient{}}
}

// RegisterBuiltin adds a builtin tool implementation under ref.
func (r *Registry) RegisterBuiltin(ref string, fn Func) {
	r.builtins[ref] = fn
}

// RegisterMCP adds an MCP server connection keyed by the tool name that
// routes to it.
func (r *Registry) RegisterMCP(name string, client MCPClient) {
	r.mcp[name] = client
}

// CallBuiltin invokes a registered builtin by ref.
func (r *Registry) CallBuiltin(ctx context.Context, ref string, input map[string]any) (any, error) {
	fn, ok := r.builtins[ref]
	if !ok {
		return nil, toolerrors.Errorf("tool: no builtin registered for ref %q", ref)
	}
	out, err := fn(ctx, input)
	if err != nil {
		return nil, toolerrors.NewWithCause("builtin tool "+ref+" failed", err)
	}
	return out, nil
}

// Call dispatches to whichever bucket name is registered under —
// builtin first, then MCP — so agentrunner's tool-call loop does not
// need to know which transport backs a given tool name.
func (r *Registry) Call(ctx context.Context, name string, input map[string]any) (any, error) {
	if _, ok := r.builtins[name]; ok {
		return r.CallBuiltin(ctx, name, input)
	}
	if _, ok := r.mcp[name]; ok {
		return r.CallMCP(ctx, name, input)
	}
	return nil, toolerrors.Errorf("tool: no builtin or MCP client registered for %q", name)
}

// CallMCP invokes a registered MCP-backed tool by name.
//
// A retry.RetryableError (an MCP server reporting invalid-params with a
// repair prompt, see tool/mcpclient) is returned unwrapped rather than
// folded into a toolerrors.ToolError: agentrunner's tool loop type-asserts
// for it to surface the repair prompt to the model, and that type
// information would not survive toolerrors' chain-flattening conversion.
func (r *Registry) CallMCP(ctx context.Context, name string, input map[string]any) (any, error) {
	c, ok := r.mcp[name]
	if !ok {
		return nil, toolerrors.Errorf("tool: no MCP client registered for tool %q", name)
	}
	out, err := c.CallTool(ctx, name, input)
	if err != nil {
		var retryable *retry.RetryableError
		if errors.As(err, &retryable) {
			return nil, retryable
		}
		return nil, toolerrors.NewWithCause("mcp tool "+name+" failed", err)
	}
	return out, nil
}

// closer is satisfied by an MCPClient that owns a connection worth
// releasing; registries close every such client on Close so tools with
// a close coroutine are awaited before the registry is discarded.
type closer interface {
	Close(ctx context.Context) error
}

// Close releases every registered MCP client that exposes a Close
// method. Builtins are plain functions and own no resources to release.
func (r *Registry) Close(ctx context.Context) error {
	var firstErr error
	for name, c := range r.mcp {
		cl, ok := c.(closer)
		if !ok {
			continue
		}
		if err := cl.Close(ctx); err != nil && firstErr == nil {
			firstErr = toolerrors.NewWithCause("closing mcp tool "+name, err)
		}
	}
	return firstErr
}
