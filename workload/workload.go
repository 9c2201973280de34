// Package workload implements the workload manager: discovery of agent
// definitions under the configured search paths, compilation of DSL
// (*.sr) sources to a runnable workflow, and a declarative YAML agent
// loader.
package workload

import (
	"fmt"

	"github.com/streetrace-ai/streetrace/codegen"
	"github.com/streetrace-ai/streetrace/dsl"
)

// Definition is a discovered, loadable agent or workflow definition.
type Definition interface {
	DefinitionName() string
	SourcePath() string
}

// DslDefinition is a compiled `.sr` workflow source.
type DslDefinition struct {
	Path    string
	Program *dsl.Program
	Data    *codegen.WorkflowData
}

func (d *DslDefinition) DefinitionName() string { return d.Data.Name }
func (d *DslDefinition) SourcePath() string      { return d.Path }

// AgentSpec is the decoded shape of a declarative `.yaml`/`.yml` agent
// definition: a name, model, tool list, and instruction body.
type AgentSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Model       string   `yaml:"model"`
	Tools       []string `yaml:"tools"`
	Instruction string   `yaml:"instruction"`
}

// YamlDefinition is a declarative single-agent definition.
type YamlDefinition struct {
	Path string
	Spec AgentSpec
}

func (d *YamlDefinition) DefinitionName() string { return d.Spec.Name }
func (d *YamlDefinition) SourcePath() string      { return d.Path }

// AgentDuplicateNameError is raised when create_workload is asked for a
// name that resolves to more than one discovered definition.
type AgentDuplicateNameError struct {
	Name  string
	Paths []string
}

func (e *AgentDuplicateNameError) Error() string {
	return fmt.Sprintf("workload: duplicate agent name %q found at %v", e.Name, e.Paths)
}

// AgentNotFoundError is raised when create_workload's ident resolves to
// no discovered definition.
type AgentNotFoundError struct{ Ident string }

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("workload: no agent found for %q", e.Ident)
}

// AgentCycleError reports a revisited declarative definition or a depth
// beyond maxAgentDepth in createWorkload. CreateWorkload starts at depth 0
// with no visited set and does not follow a declarative agent's tool
// references to other definitions, so it never returns this error.
type AgentCycleError struct{ Path []string }

func (e *AgentCycleError) Error() string {
	msg := "workload: cyclic or too-deep agent reference: "
	for i, p := range e.Path {
		if i > 0 {
			msg += " -> "
		}
		msg += p
	}
	return msg
}

// maxAgentDepth is the depth limit createWorkload checks; CreateWorkload
// always passes depth 0 and nothing recurses.
const maxAgentDepth = 5
