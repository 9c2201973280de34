// Package workflow implements the workflow runtime core: the
// WorkflowContext global variable store and registries (C5), and the
// statement executor that realizes the DSL's lowering rules (C4 §"WHAT,
// not how") against that context.
package workflow

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/streetrace-ai/streetrace/dsl"
)

// Context is the per-turn WorkflowContext: a single global variable scope
// plus the registries resolved once at workload construction. It is owned
// by the flow executing it; parallel branches only ever write through the
// executor's disjoint-target discipline (see parallelexec).
type Context struct {
	mu sync.Mutex

	Vars map[string]any

	// RunID identifies the supervisor turn this context belongs to, for
	// reminder-engine lookups and run-metadata logging. Empty when no
	// run store is configured.
	RunID string

	LastCallResult string
	LastEscalated  bool

	models     map[string]*dsl.ModelDef
	prompts    map[string]*dsl.PromptDef
	agents     map[string]*dsl.AgentDef
	schemas    map[string]string
	registered bool

	createdAgents []string
}

// NewContext creates a context for one user turn, seeding
// vars["input_prompt"].
func NewContext(inputPrompt string) *Context {
	return &Context{
		Vars: map[string]any{"input_prompt": inputPrompt},
	}
}

// SetRegistries populates the model/prompt/agent/schema registries once;
// a second call is a programming error (registries are immutable for the
// life of a turn) and panics, failing loudly on the invariant violation
// rather than silently ignoring it.
func (c *Context) SetRegistries(models map[string]*dsl.ModelDef, prompts map[string]*dsl.PromptDef, agents map[string]*dsl.AgentDef, schemas map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered {
		panic("workflow: context registries already set for this turn")
	}
	c.models, c.prompts, c.agents, c.schemas = models, prompts, agents, schemas
	c.registered = true
}

// Model looks up a model definition by name.
func (c *Context) Model(name string) (*dsl.ModelDef, bool) {
	m, ok := c.models[name]
	return m, ok
}

// Prompt looks up a prompt definition by name.
func (c *Context) Prompt(name string) (*dsl.PromptDef, bool) {
	p, ok := c.prompts[name]
	return p, ok
}

// Agent looks up an agent definition by name.
func (c *Context) Agent(name string) (*dsl.AgentDef, bool) {
	a, ok := c.agents[name]
	return a, ok
}

// Get reads a variable. Missing variables return (nil, false); callers at
// the flow boundary turn this into a runtime diagnostic that surfaces to
// the caller flow.
func (c *Context) Get(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Vars[name]
	return v, ok
}

// MustGet reads a variable, returning an error if it is absent.
func (c *Context) MustGet(name string) (any, error) {
	v, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("workflow: undefined variable %q", name)
	}
	return v, nil
}

// Set writes a variable under the context's mutex. The parallel
// executor's branch write-backs go through SetDisjoint, which calls Set.
func (c *Context) Set(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Vars[name] = v
}

// SetDisjoint is the only entry point the parallel executor uses to write
// results back into vars; it exists as a distinct, named method so a
// reviewer can grep for every concurrent writer.
func (c *Context) SetDisjoint(name string, v any) {
	c.Set(name, v)
}

// MarkEscalated records that a parallel branch's agent escalated; safe to
// call concurrently from more than one branch goroutine.
func (c *Context) MarkEscalated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastEscalated = true
}

// Snapshot returns a shallow copy of vars, used to give each parallel
// branch a read view fixed at fan-out time.
func (c *Context) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.Vars))
	for k, v := range c.Vars {
		out[k] = v
	}
	return out
}

// TrackCreatedAgent records an agent instance created for this workload;
// the agent runner calls it for each agent it runs. No Close reads the list.
func (c *Context) TrackCreatedAgent(name string) {
	c.createdAgents = append(c.createdAgents, name)
}

// CreatedAgents returns the agents created for this workload, in creation
// order.
func (c *Context) CreatedAgents() []string {
	return c.createdAgents
}

// promptVarRef matches the `$name` global-variable references a prompt
// body may contain, e.g. `Review $pr_description for $changes`.
var promptVarRef = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// RenderPromptBody substitutes every `$name` reference in a prompt's raw
// body with the stringified value of ctx.vars[name]. A reference to an
// undefined variable surfaces as an error here, which the calling flow
// reports as a runtime diagnostic.
func RenderPromptBody(body string, wctx *Context) (string, error) {
	var missing string
	rendered := promptVarRef.ReplaceAllStringFunc(body, func(match string) string {
		name := match[1:]
		v, ok := wctx.Get(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return Stringify(v)
	})
	if missing != "" {
		return "", fmt.Errorf("workflow: undefined variable %q referenced in prompt body", missing)
	}
	return rendered, nil
}
