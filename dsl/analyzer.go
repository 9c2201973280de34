package dsl

import (
	"fmt"

	"github.com/streetrace-ai/streetrace/diag"
)

// AnalysisResult is the outcome of semantic analysis: whether the program
// is valid plus the diagnostics collected along the way.
type AnalysisResult struct {
	IsValid  bool
	Errors   []diag.Diagnostic
	Warnings []diag.Diagnostic
}

// symbols is the set of top-level names collected in pass 1.
type symbols struct {
	models  map[string]*ModelDef
	tools   map[string]*ToolDef
	prompts map[string]*PromptDef
	agents  map[string]*AgentDef
	flows   map[string]*FlowDef
}

// Analyze runs a two-pass semantic check over a parsed Program, in
// addition to any diagnostics already collected by the parser.
func Analyze(prog *Program, parserDiags []diag.Diagnostic) AnalysisResult {
	a := &analyzer{file: prog.File}
	a.diags = append(a.diags, parserDiags...)

	syms := a.collectTopLevel(prog)

	if prog.Policy != nil {
		a.checkPolicy(prog.Policy)
	}

	for _, fd := range prog.Flows {
		a.checkFlow(fd, syms, newScope())
	}
	for _, ad := range prog.Agents {
		a.checkAgent(ad, syms)
	}

	var res AnalysisResult
	for _, d := range a.diags {
		if d.Severity == diag.SeverityError {
			res.Errors = append(res.Errors, d)
		} else {
			res.Warnings = append(res.Warnings, d)
		}
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

type analyzer struct {
	file  string
	diags []diag.Diagnostic
}

func (a *analyzer) errorAt(pos Pos, code diag.Code, format string, args ...any) {
	a.diags = append(a.diags, diag.Diagnostic{
		Severity: diag.SeverityError, Code: code,
		Message: fmt.Sprintf(format, args...), File: a.file, Line: pos.Line, Column: pos.Column,
	})
}

func (a *analyzer) warnAt(pos Pos, format string, args ...any) {
	a.diags = append(a.diags, diag.Diagnostic{
		Severity: diag.SeverityWarning,
		Message:  fmt.Sprintf(format, args...), File: a.file, Line: pos.Line, Column: pos.Column,
	})
}

// collectTopLevel is pass 1: gather every top-level name, reporting
// duplicates.
func (a *analyzer) collectTopLevel(prog *Program) *symbols {
	syms := &symbols{
		models:  map[string]*ModelDef{},
		tools:   map[string]*ToolDef{},
		prompts: map[string]*PromptDef{},
		agents:  map[string]*AgentDef{},
		flows:   map[string]*FlowDef{},
	}
	for _, m := range prog.Models {
		syms.models[m.Name] = m
	}
	for _, t := range prog.Tools {
		syms.tools[t.Name] = t
	}
	for _, pr := range prog.Prompts {
		if pr.Escalation != nil && !validEscalationOp(pr.Escalation.Op) {
			a.errorAt(pr.Pos, diag.CodeBadEscalationOp, "prompt %q has an unsupported escalation operator %q", pr.Name, pr.Escalation.Op)
		}
		syms.prompts[pr.Name] = pr
	}
	for _, ag := range prog.Agents {
		syms.agents[ag.Name] = ag
	}
	for _, fl := range prog.Flows {
		syms.flows[fl.Name] = fl
	}
	return syms
}

func validEscalationOp(op EscalationOp) bool {
	switch op {
	case EscNormalize, EscEqual, EscNotEqual, EscContains:
		return true
	default:
		return false
	}
}

func (a *analyzer) checkPolicy(pd *PolicyDef) {
	if pd.Strategy != "" && pd.Strategy != "truncate" && pd.Strategy != "summarize" {
		a.errorAt(pd.Pos, diag.CodeBadCompactionStr, "compaction strategy must be 'truncate' or 'summarize', got %q", pd.Strategy)
	}
}

func (a *analyzer) checkAgent(ad *AgentDef, syms *symbols) {
	if ad.Instruction != "" {
		if _, ok := syms.prompts[ad.Instruction]; !ok {
			a.errorAt(ad.Pos, diag.CodeUnresolvedRef, "agent %q references undefined prompt %q", ad.Name, ad.Instruction)
		}
	}
	for _, tname := range ad.Tools {
		if _, ok := syms.tools[tname]; !ok {
			a.errorAt(ad.Pos, diag.CodeUnresolvedRef, "agent %q references undefined tool %q", ad.Name, tname)
		}
	}
}

// scope tracks variables assigned so far while walking a flow body,
// in source order, so forward references are rejected.
type scope struct {
	vars map[string]bool
}

func newScope() *scope { return &scope{vars: map[string]bool{}} }

func (s *scope) define(name string)    { s.vars[name] = true }
func (s *scope) has(name string) bool  { return s.vars[name] }

func (a *analyzer) checkFlow(fd *FlowDef, syms *symbols, sc *scope) {
	a.checkStmts(fd.Body, syms, sc, false)
}

func (a *analyzer) checkStmts(stmts []Stmt, syms *symbols, sc *scope, inParallel bool) {
	for _, s := range stmts {
		a.checkStmt(s, syms, sc, inParallel)
	}
}

func (a *analyzer) checkStmt(s Stmt, syms *symbols, sc *scope, inParallel bool) {
	switch st := s.(type) {
	case *Assignment:
		a.checkExpr(st.Value, syms, sc)
		sc.define(st.Target)
	case *PropertyAssignment:
		if !sc.has(st.Base) {
			a.errorAt(st.Pos, diag.CodeUnresolvedRef, "assignment to undefined variable %q", st.Base)
		}
		a.checkExpr(st.Value, syms, sc)
	case *CallStmt:
		if _, ok := syms.prompts[st.Prompt]; !ok {
			a.errorAt(st.Pos, diag.CodeUnresolvedRef, "call llm references undefined prompt %q", st.Prompt)
		}
		if st.Target != "" {
			sc.define(st.Target)
		}
	case *RunStmt:
		a.checkRunStmt(st, syms, sc)
	case *ReturnStmt:
		if st.Value != nil {
			a.checkExpr(st.Value, syms, sc)
		}
	case *ForLoop:
		a.checkExpr(st.Iter, syms, sc)
		inner := newScope()
		for k := range sc.vars {
			inner.vars[k] = true
		}
		inner.define(st.Var)
		a.checkStmts(st.Body, syms, inner, inParallel)
	case *ParallelBlock:
		seen := map[string]bool{}
		for _, ps := range st.Body {
			rs, ok := ps.(*RunStmt)
			if !ok {
				a.errorAt(st.Pos, diag.CodeNonRunInParallel, "parallel do body must contain only run statements")
				continue
			}
			if rs.Target != "" {
				if seen[rs.Target] {
					a.errorAt(rs.Pos, diag.CodeDuplicateTarget, "duplicate parallel assignment target %q", rs.Target)
				}
				seen[rs.Target] = true
			}
			a.checkRunStmt(rs, syms, sc)
			if rs.Target != "" {
				sc.define(rs.Target)
			}
		}
	case *EventHandler:
		a.checkStmts(st.Body, syms, sc, inParallel)
	}
}

func (a *analyzer) checkRunStmt(st *RunStmt, syms *symbols, sc *scope) {
	if st.IsFlow {
		if _, ok := syms.flows[st.Agent]; !ok {
			a.errorAt(st.Pos, diag.CodeUnresolvedRef, "run flow references undefined flow %q", st.Agent)
		}
	} else {
		if _, ok := syms.agents[st.Agent]; !ok {
			a.errorAt(st.Pos, diag.CodeUnresolvedRef, "run agent references undefined agent %q", st.Agent)
		}
	}
	if st.Input != nil {
		a.checkExpr(st.Input, syms, sc)
	}
	if st.Target != "" {
		sc.define(st.Target)
	}
}

func (a *analyzer) checkExpr(e Expr, syms *symbols, sc *scope) {
	switch ex := e.(type) {
	case *VarRef:
		_, isFlow := syms.flows[ex.Name]
		_, isAgent := syms.agents[ex.Name]
		_, isPrompt := syms.prompts[ex.Name]
		_, isModel := syms.models[ex.Name]
		if !sc.has(ex.Name) && !isFlow && !isAgent && !isPrompt && !isModel {
			a.errorAt(ex.Pos, diag.CodeUnresolvedRef, "reference to undefined name %q", ex.Name)
		}
	case *PropertyAccess:
		if !sc.has(ex.Base) {
			a.errorAt(ex.Pos, diag.CodeUnresolvedRef, "reference to undefined variable %q", ex.Base)
		}
	case *ImplicitProperty:
		// only valid inside a FilterExpr condition; nothing further to resolve.
	case *ListLiteral:
		for _, el := range ex.Elements {
			a.checkExpr(el, syms, sc)
		}
	case *ObjectLiteral:
		for _, entry := range ex.Entries {
			a.checkExpr(entry.Value, syms, sc)
		}
	case *BinaryOp:
		a.checkExpr(ex.Left, syms, sc)
		a.checkExpr(ex.Right, syms, sc)
	case *FilterExpr:
		a.checkExpr(ex.ListExpr, syms, sc)
		a.checkExpr(ex.Condition, syms, sc)
	}
}
