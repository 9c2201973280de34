// Package codegen turns an analyzed dsl.Program into a compiled
// WorkflowData: a Go value (not Go source text) that the runtime
// can execute directly. See DESIGN.md for why this module stops short of
// emitting a second .go source file: workflows here are discovered and
// loaded at process start, so there is no intervening build step for
// generated source to target.
package codegen

import (
	"fmt"

	"github.com/streetrace-ai/streetrace/diag"
	"github.com/streetrace-ai/streetrace/dsl"
)

// SourceMapEntry records which flow and source line produced a generated
// step, so runtime errors can point back at DSL source.
type SourceMapEntry struct {
	Flow       string
	SourceLine int
}

// SourceMap is an ordered record of emitted steps to their DSL origin.
type SourceMap []SourceMapEntry

// FlowData is the per-flow slice of a WorkflowData: its name and body,
// ready for the runtime executor.
type FlowData struct {
	Name string
	Body []dsl.Stmt
}

// WorkflowData is the lowered, ready-to-run form of a dsl.Program: the
// registries a workflow.Context needs plus one FlowData per flow.
//
// It is a pure transform from AST to a flat, render-ready shape, kept
// separate from the step that consumes it.
type WorkflowData struct {
	Name       string
	Models     map[string]*dsl.ModelDef
	Tools      map[string]*dsl.ToolDef
	Prompts    map[string]*dsl.PromptDef
	Agents     map[string]*dsl.AgentDef
	Flows      []FlowData
	Policy     *dsl.PolicyDef
	SourceMap  SourceMap
}

// BuildWorkflowData lowers an analyzed, valid Program into a WorkflowData.
// Callers must run dsl.Analyze first and check AnalysisResult.IsValid;
// BuildWorkflowData does not re-validate references.
func BuildWorkflowData(prog *dsl.Program) (*WorkflowData, error) {
	if prog.Version == nil {
		return nil, fmt.Errorf("codegen: program %s has no version header", prog.File)
	}

	wd := &WorkflowData{
		Name:    workflowName(prog.File),
		Models:  map[string]*dsl.ModelDef{},
		Tools:   map[string]*dsl.ToolDef{},
		Prompts: map[string]*dsl.PromptDef{},
		Agents:  map[string]*dsl.AgentDef{},
		Policy:  prog.Policy,
	}
	for _, m := range prog.Models {
		wd.Models[m.Name] = m
	}
	for _, t := range prog.Tools {
		wd.Tools[t.Name] = t
	}
	for _, p := range prog.Prompts {
		wd.Prompts[p.Name] = p
	}
	for _, a := range prog.Agents {
		wd.Agents[a.Name] = a
	}

	for _, fd := range prog.Flows {
		wd.Flows = append(wd.Flows, FlowData{Name: fd.Name, Body: fd.Body})
		recordSourceMap(&wd.SourceMap, fd.Name, fd.Body)
	}

	return wd, nil
}

func workflowName(file string) string {
	base := file
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}

func recordSourceMap(sm *SourceMap, flow string, stmts []dsl.Stmt) {
	for _, s := range stmts {
		line := statementLine(s)
		*sm = append(*sm, SourceMapEntry{Flow: flow, SourceLine: line})
		for _, nested := range nestedBodies(s) {
			recordSourceMap(sm, flow, nested)
		}
	}
}

func nestedBodies(s dsl.Stmt) [][]dsl.Stmt {
	switch st := s.(type) {
	case *dsl.ForLoop:
		return [][]dsl.Stmt{st.Body}
	case *dsl.ParallelBlock:
		return [][]dsl.Stmt{st.Body}
	case *dsl.EventHandler:
		return [][]dsl.Stmt{st.Body}
	default:
		return nil
	}
}

func statementLine(s dsl.Stmt) int {
	switch st := s.(type) {
	case *dsl.Assignment:
		return st.Pos.Line
	case *dsl.PropertyAssignment:
		return st.Pos.Line
	case *dsl.CallStmt:
		return st.Pos.Line
	case *dsl.RunStmt:
		return st.Pos.Line
	case *dsl.ReturnStmt:
		return st.Pos.Line
	case *dsl.ForLoop:
		return st.Pos.Line
	case *dsl.ParallelBlock:
		return st.Pos.Line
	case *dsl.EventHandler:
		return st.Pos.Line
	default:
		return 0
	}
}

// Lint checks a load-time invariant: a compiled workflow must not
// shadow the loader's own constructor. Since this package never emits a
// `New<Type>` symbol, Lint exists to catch a future regression in the
// generator itself rather than anything a DSL author can trigger.
func Lint(wd *WorkflowData) []diag.Diagnostic {
	// No generator path in this package ever defines a constructor;
	// this is a standing invariant rather than a per-program check.
	return nil
}
