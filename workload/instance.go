package workload

import (
	"context"
	"fmt"
	"strings"

	"github.com/streetrace-ai/streetrace/agentrunner"
	"github.com/streetrace-ai/streetrace/codegen"
	"github.com/streetrace-ai/streetrace/dsl"
	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/parallelexec"
	"github.com/streetrace-ai/streetrace/reminder"
	"github.com/streetrace-ai/streetrace/tool"
	"github.com/streetrace-ai/streetrace/workflow"
)

// Workload is a running agent instance: either a compiled DSL workflow
// or a declarative single-agent wrapper.
type Workload interface {
	// Name is the definition's registered name.
	Name() string
	// Run executes one turn against wctx (already seeded with
	// input_prompt by the caller) and returns the events produced plus
	// the turn's final text.
	Run(ctx context.Context, wctx *workflow.Context) ([]flowevent.Event, string, error)
	// Close releases the workload's resources. DslWorkload closes the MCP
	// clients of the tool registry it was created with; BasicAgentWorkload
	// releases nothing. Created agents are not tracked or released.
	Close(ctx context.Context) error
}

// CreateWorkload resolves ident to a Definition and constructs the
// runnable Workload, wired with the given model resolver and tool
// registry.
func (m *Manager) CreateWorkload(models agentrunner.ModelResolver, tools *tool.Registry, ident string) (Workload, error) {
	def, err := m.Resolve(ident)
	if err != nil {
		return nil, err
	}
	return m.createWorkload(models, tools, def, nil, 0)
}

func (m *Manager) createWorkload(models agentrunner.ModelResolver, tools *tool.Registry, def Definition, visited map[string]bool, depth int) (Workload, error) {
	if depth > maxAgentDepth {
		return nil, &AgentCycleError{Path: visitedPath(visited, def.DefinitionName())}
	}
	switch d := def.(type) {
	case *DslDefinition:
		return newDslWorkload(models, tools, d, m.Reminders), nil
	case *YamlDefinition:
		if visited == nil {
			visited = map[string]bool{}
		}
		if visited[d.Spec.Name] {
			return nil, &AgentCycleError{Path: visitedPath(visited, d.Spec.Name)}
		}
		visited[d.Spec.Name] = true
		return newBasicAgentWorkload(models, tools, d, m.Reminders), nil
	default:
		return nil, fmt.Errorf("workload: unsupported definition type %T", def)
	}
}

func visitedPath(visited map[string]bool, last string) []string {
	path := make([]string, 0, len(visited)+1)
	for name := range visited {
		path = append(path, name)
	}
	return append(path, last)
}

// --- DSL workloads ---

// flowRunner resolves `run flow <name>` against the flows compiled from
// the same source file; StreetRace has no cross-file flow references.
type flowRunner struct {
	flows  map[string][]dsl.Stmt
	engine *workflow.Engine
}

func (fr *flowRunner) RunFlow(ctx context.Context, wctx *workflow.Context, flowName string) ([]flowevent.Event, any, error) {
	body, ok := fr.flows[flowName]
	if !ok {
		return nil, nil, fmt.Errorf("workflow: unknown flow %q", flowName)
	}
	return fr.engine.RunFlowBody(ctx, wctx, body)
}

// DslWorkload runs a compiled `.sr` workflow's entry flow.
type DslWorkload struct {
	def   *DslDefinition
	tools *tool.Registry
	flows map[string][]dsl.Stmt
	fr    *flowRunner
	entry string
}

func newDslWorkload(models agentrunner.ModelResolver, tools *tool.Registry, def *DslDefinition, reminders *reminder.Engine) *DslWorkload {
	runner := agentrunner.New(models, tools, nil)
	runner.Reminders = reminders
	runner.Policy = def.Data.Policy
	llm := &agentrunner.LLMCaller{Models: models}
	flows := map[string][]dsl.Stmt{}
	for _, fd := range def.Data.Flows {
		flows[fd.Name] = fd.Body
	}
	engine := &workflow.Engine{Agents: runner, LLM: llm}
	fr := &flowRunner{flows: flows, engine: engine}
	engine.Flows = fr
	engine.Parallel = parallelexec.New(runner, fr)

	entry := entryFlowName(def.Data.Flows)
	return &DslWorkload{def: def, tools: tools, flows: flows, fr: fr, entry: entry}
}

// Name implements Workload.
func (d *DslWorkload) Name() string { return d.def.Data.Name }

// Run implements Workload: it populates wctx's registries from the
// compiled program and executes the entry flow to completion.
func (d *DslWorkload) Run(ctx context.Context, wctx *workflow.Context) ([]flowevent.Event, string, error) {
	if d.entry == "" {
		return nil, "", fmt.Errorf("workload: %s: ambiguous entry flow; declare one flow named %q", d.def.Data.Name, "main")
	}
	wctx.SetRegistries(d.def.Data.Models, d.def.Data.Prompts, d.def.Data.Agents, schemaNames(d.def.Data.Prompts))

	events, ret, err := d.fr.engine.RunFlowBody(ctx, wctx, d.flows[d.entry])
	if err != nil {
		return events, "", err
	}
	final := wctx.LastCallResult
	if s, ok := ret.(string); ok && s != "" {
		final = s
	}
	return events, final, nil
}

// Close implements Workload: it closes the MCP clients of the tool
// registry passed to CreateWorkload, which is the caller's registry and
// not a per-workload copy. It releases no sub-agents.
func (d *DslWorkload) Close(ctx context.Context) error {
	if d.tools == nil {
		return nil
	}
	return d.tools.Close(ctx)
}

// schemaNames builds the prompt-name->schema-type-name lookup
// Context.SetRegistries expects; the actual JSON schema bytes for a
// named type are a separate concern registered by the embedding
// application against agentrunner's own schema-registry seam.
func schemaNames(prompts map[string]*dsl.PromptDef) map[string]string {
	names := map[string]string{}
	for _, p := range prompts {
		if p.Schema != "" {
			names[p.Name] = p.Schema
		}
	}
	return names
}

// entryFlowName picks the workflow's entry point: the flow named "main"
// by convention, or the sole flow when a file declares exactly one.
// Ambiguous files (several flows, none named "main") surface the error
// at Run time via the empty string.
func entryFlowName(flows []codegen.FlowData) string {
	if len(flows) == 1 {
		return flows[0].Name
	}
	for _, fd := range flows {
		if fd.Name == "main" {
			return "main"
		}
	}
	return ""
}

// --- declarative (YAML) workloads ---

const basicAgentPromptName = "instruction"
const basicAgentModelName = "default"

// BasicAgentWorkload wraps a single `*.yaml`/`*.yml` declarative agent in
// the same Workload contract a DSL workflow satisfies, delegating
// straight to one LLM agent without any flow interpretation.
type BasicAgentWorkload struct {
	def    *YamlDefinition
	runner *agentrunner.Runner
	agent  *dsl.AgentDef
	models map[string]*dsl.ModelDef
	prompt map[string]*dsl.PromptDef
	agents map[string]*dsl.AgentDef
}

func newBasicAgentWorkload(models agentrunner.ModelResolver, tools *tool.Registry, def *YamlDefinition, reminders *reminder.Engine) *BasicAgentWorkload {
	provider, modelID := splitProviderModel(def.Spec.Model)
	agentDef := &dsl.AgentDef{
		Name:        def.Spec.Name,
		Tools:       def.Spec.Tools,
		Instruction: basicAgentPromptName,
		Description: def.Spec.Description,
		IsRoot:      true,
	}
	runner := agentrunner.New(models, tools, nil)
	runner.Reminders = reminders
	return &BasicAgentWorkload{
		def:    def,
		runner: runner,
		agent:  agentDef,
		models: map[string]*dsl.ModelDef{basicAgentModelName: {Name: basicAgentModelName, Provider: provider, ModelID: modelID}},
		prompt: map[string]*dsl.PromptDef{basicAgentPromptName: {Name: basicAgentPromptName, Body: def.Spec.Instruction, Model: basicAgentModelName}},
		agents: map[string]*dsl.AgentDef{def.Spec.Name: agentDef},
	}
}

// Name implements Workload.
func (b *BasicAgentWorkload) Name() string { return b.def.Spec.Name }

// Run implements Workload: it registers the single synthetic
// model/prompt/agent triple and runs the agent once against
// wctx.vars["input_prompt"].
func (b *BasicAgentWorkload) Run(ctx context.Context, wctx *workflow.Context) ([]flowevent.Event, string, error) {
	wctx.SetRegistries(b.models, b.prompt, b.agents, nil)
	input, _ := wctx.Get("input_prompt")
	outcome, err := b.runner.RunAgent(ctx, wctx, b.agent.Name, input)
	if err != nil {
		return nil, "", err
	}
	wctx.LastCallResult = outcome.FinalText
	wctx.LastEscalated = outcome.Escalated
	events := outcome.Events
	if outcome.Escalated && outcome.EscalationEvent != nil {
		events = append(events, outcome.EscalationEvent)
		events = append(events, &flowevent.ContentEvent{
			Author: b.agent.Name, IsFinal: true, Actions: flowevent.Actions{Escalate: true},
		})
	}
	return events, outcome.FinalText, nil
}

// Close implements Workload. It releases nothing and returns nil; the
// tool.Registry passed to CreateWorkload is left open.
func (b *BasicAgentWorkload) Close(ctx context.Context) error { return nil }

// splitProviderModel parses a YAML agent spec's "provider/model" field,
// mirroring the DSL parser's `model <name> = <provider/model>` split.
func splitProviderModel(s string) (provider, modelID string) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return s, s
	}
	return s[:idx], s[idx+1:]
}
