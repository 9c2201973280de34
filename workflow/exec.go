package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/streetrace-ai/streetrace/dsl"
	"github.com/streetrace-ai/streetrace/flowevent"
)

// RunSpec is one branch of a `parallel do` block, lowered from a RunStmt.
type RunSpec struct {
	Target string
	Agent  string
	Input  any
	IsFlow bool
}

// AgentRunner is the C6 integration point: running a single named agent
// to completion, yielding its events and final text. Sub-flows are run
// by Engine.Flows, not by this interface.
type AgentRunner interface {
	RunAgent(ctx context.Context, wctx *Context, agentName string, input any) (*RunOutcome, error)
}

// FlowRunner lets the executor recurse into `run flow F` without importing
// a supervisor/workload package (which would cycle back to workflow).
type FlowRunner interface {
	RunFlow(ctx context.Context, wctx *Context, flowName string) ([]flowevent.Event, any, error)
}

// ParallelExecutor is the C8 integration point.
type ParallelExecutor interface {
	RunParallel(ctx context.Context, wctx *Context, specs []RunSpec) ([]flowevent.Event, error)
}

// LLMCaller is the C6/C5 integration point for `call llm <prompt>`.
type LLMCaller interface {
	CallLLM(ctx context.Context, wctx *Context, promptName string) ([]flowevent.Event, string, error)
}

// RunOutcome is what an AgentRunner reports back for a single `run agent`.
type RunOutcome struct {
	FinalText        string
	Escalated        bool
	EscalationEvent  *flowevent.EscalationEvent
	Events           []flowevent.Event
}

// Engine executes a flow body against a Context, realizing the DSL's
// statement lowering rules.
type Engine struct {
	Agents   AgentRunner
	Flows    FlowRunner
	Parallel ParallelExecutor
	LLM      LLMCaller
}

// RunFlowBody executes a flow body to completion (or an early return),
// returning the accumulated events and the flow's return value, if any.
func (e *Engine) RunFlowBody(ctx context.Context, wctx *Context, body []dsl.Stmt) ([]flowevent.Event, any, error) {
	events, ret, err := e.execStmts(ctx, wctx, body)
	if rs, ok := err.(returnSignal); ok {
		return events, rs.value, nil
	}
	if err != nil {
		return events, nil, err
	}
	return events, ret, nil
}

func (e *Engine) execStmts(ctx context.Context, wctx *Context, stmts []dsl.Stmt) ([]flowevent.Event, any, error) {
	var all []flowevent.Event
	for _, s := range stmts {
		evs, ret, err := e.execStmt(ctx, wctx, s)
		all = append(all, evs...)
		if err != nil {
			return all, ret, err
		}
	}
	return all, nil, nil
}

func (e *Engine) execStmt(ctx context.Context, wctx *Context, s dsl.Stmt) ([]flowevent.Event, any, error) {
	switch st := s.(type) {
	case *dsl.Assignment:
		v, err := e.evalExpr(wctx, st.Value)
		if err != nil {
			return nil, nil, err
		}
		wctx.Set(st.Target, v)
		return nil, nil, nil

	case *dsl.PropertyAssignment:
		v, err := e.evalExpr(wctx, st.Value)
		if err != nil {
			return nil, nil, err
		}
		base, ok := wctx.Get(st.Base)
		if !ok {
			return nil, nil, fmt.Errorf("workflow: undefined variable %q", st.Base)
		}
		if err := setPath(base, st.Path, v); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil

	case *dsl.CallStmt:
		events, text, err := e.LLM.CallLLM(ctx, wctx, st.Prompt)
		if err != nil {
			return events, nil, err
		}
		wctx.LastCallResult = text
		if st.Target != "" {
			wctx.Set(st.Target, text)
		}
		return events, nil, nil

	case *dsl.RunStmt:
		return e.execRunStmt(ctx, wctx, st)

	case *dsl.ReturnStmt:
		var v any
		if st.Value != nil {
			val, err := e.evalExpr(wctx, st.Value)
			if err != nil {
				return nil, nil, err
			}
			v = val
		}
		return nil, v, returnSignal{value: v}

	case *dsl.ForLoop:
		return e.execForLoop(ctx, wctx, st)

	case *dsl.ParallelBlock:
		return e.execParallel(ctx, wctx, st)

	case *dsl.EventHandler:
		// Event handlers execute immediately and in place within the flow
		// body; nothing registers them as callbacks.
		events, _, err := e.execStmts(ctx, wctx, st.Body)
		return events, nil, err

	default:
		return nil, nil, fmt.Errorf("workflow: unsupported statement %T", s)
	}
}

func (e *Engine) execRunStmt(ctx context.Context, wctx *Context, st *dsl.RunStmt) ([]flowevent.Event, any, error) {
	if st.IsFlow {
		events, ret, err := e.Flows.RunFlow(ctx, wctx, st.Agent)
		if err != nil {
			return events, nil, err
		}
		if st.Target != "" {
			wctx.Set(st.Target, ret)
		}
		return events, nil, nil
	}

	var input any
	if st.Input != nil {
		v, err := e.evalExpr(wctx, st.Input)
		if err != nil {
			return nil, nil, err
		}
		input = v
	}

	outcome, err := e.Agents.RunAgent(ctx, wctx, st.Agent, input)
	if err != nil {
		return nil, nil, err
	}
	events := outcome.Events
	wctx.LastCallResult = outcome.FinalText
	wctx.LastEscalated = outcome.Escalated

	if outcome.Escalated {
		if outcome.EscalationEvent != nil {
			events = append(events, outcome.EscalationEvent)
		}
		events = append(events, &flowevent.ContentEvent{
			Author: st.Agent, IsFinal: true, Actions: flowevent.Actions{Escalate: true},
		})
		if st.EscalationHandler != nil {
			switch st.EscalationHandler.Kind {
			case dsl.EscHandlerReturn:
				v, err := e.evalExpr(wctx, st.EscalationHandler.Value)
				if err != nil {
					return events, nil, err
				}
				return events, v, returnSignal{value: v}
			case dsl.EscHandlerContinue:
				return events, nil, continueSignal{}
			case dsl.EscHandlerAbort:
				return events, nil, &AbortError{Message: fmt.Sprintf("agent %s aborted on escalation", st.Agent)}
			}
		}
		if st.Target != "" {
			wctx.Set(st.Target, outcome.FinalText)
		}
		return events, nil, nil
	}

	if st.Target != "" {
		wctx.Set(st.Target, outcome.FinalText)
	}
	return events, nil, nil
}

func (e *Engine) execForLoop(ctx context.Context, wctx *Context, st *dsl.ForLoop) ([]flowevent.Event, any, error) {
	iterVal, err := e.evalExpr(wctx, st.Iter)
	if err != nil {
		return nil, nil, err
	}
	items, ok := iterVal.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("workflow: for loop iterable must be a list, got %T", iterVal)
	}

	var all []flowevent.Event
	for _, item := range items {
		wctx.Set(st.Var, item)
		evs, ret, err := e.execStmts(ctx, wctx, st.Body)
		all = append(all, evs...)
		if _, isContinue := err.(continueSignal); isContinue {
			continue
		}
		if err != nil {
			return all, ret, err
		}
	}
	return all, nil, nil
}

func (e *Engine) execParallel(ctx context.Context, wctx *Context, st *dsl.ParallelBlock) ([]flowevent.Event, any, error) {
	if len(st.Body) == 0 {
		return nil, nil, nil
	}
	specs := make([]RunSpec, 0, len(st.Body))
	for _, s := range st.Body {
		rs, ok := s.(*dsl.RunStmt)
		if !ok {
			return nil, nil, fmt.Errorf("workflow: parallel block contains non-run statement %T", s)
		}
		var input any
		if rs.Input != nil {
			v, err := e.evalExpr(wctx, rs.Input)
			if err != nil {
				return nil, nil, err
			}
			input = v
		}
		specs = append(specs, RunSpec{Target: rs.Target, Agent: rs.Agent, Input: input, IsFlow: rs.IsFlow})
	}
	events, err := e.Parallel.RunParallel(ctx, wctx, specs)
	return events, nil, err
}

func setPath(base any, path []string, v any) error {
	m, ok := base.(map[string]any)
	if !ok {
		return fmt.Errorf("workflow: cannot set property path on non-object value %T", base)
	}
	for i, key := range path {
		if i == len(path)-1 {
			m[key] = v
			return nil
		}
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	return nil
}

// --- expression evaluation ---

func (e *Engine) evalExpr(wctx *Context, expr dsl.Expr) (any, error) {
	switch ex := expr.(type) {
	case *dsl.Literal:
		return ex.Value, nil
	case *dsl.VarRef:
		v, ok := wctx.Get(ex.Name)
		if !ok {
			return nil, fmt.Errorf("workflow: undefined variable %q", ex.Name)
		}
		return v, nil
	case *dsl.PropertyAccess:
		base, ok := wctx.Get(ex.Base)
		if !ok {
			return nil, fmt.Errorf("workflow: undefined variable %q", ex.Base)
		}
		return getPath(base, ex.Path), nil
	case *dsl.ListLiteral:
		out := make([]any, 0, len(ex.Elements))
		for _, el := range ex.Elements {
			v, err := e.evalExpr(wctx, el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *dsl.ObjectLiteral:
		out := map[string]any{}
		for _, entry := range ex.Entries {
			v, err := e.evalExpr(wctx, entry.Value)
			if err != nil {
				return nil, err
			}
			out[entry.Key] = v
		}
		return out, nil
	case *dsl.FilterExpr:
		return e.evalFilter(wctx, ex)
	case *dsl.BinaryOp:
		return e.evalBinaryOp(wctx, ex, nil)
	default:
		return nil, fmt.Errorf("workflow: unsupported expression %T", expr)
	}
}

func (e *Engine) evalFilter(wctx *Context, fe *dsl.FilterExpr) (any, error) {
	listVal, err := e.evalExpr(wctx, fe.ListExpr)
	if err != nil {
		return nil, err
	}
	items, ok := listVal.([]any)
	if !ok {
		return nil, fmt.Errorf("workflow: filter target must be a list, got %T", listVal)
	}
	var out []any
	for _, item := range items {
		keep, err := e.evalCondition(wctx, fe.Condition, item)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (e *Engine) evalCondition(wctx *Context, cond dsl.Expr, item any) (bool, error) {
	v, err := e.evalBinaryOp(wctx, cond, item)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *Engine) evalBinaryOp(wctx *Context, expr dsl.Expr, implicitItem any) (any, error) {
	bo, ok := expr.(*dsl.BinaryOp)
	if !ok {
		// a bare implicit-property or literal used directly as a truthy condition
		v, err := e.evalWithImplicit(wctx, expr, implicitItem)
		if err != nil {
			return nil, err
		}
		return v != nil, nil
	}
	left, err := e.evalWithImplicit(wctx, bo.Left, implicitItem)
	if err != nil {
		return nil, err
	}
	right, err := e.evalWithImplicit(wctx, bo.Right, implicitItem)
	if err != nil {
		return nil, err
	}
	switch bo.Op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case "contains":
		ls, lok := left.(string)
		rs, rok := right.(string)
		if lok && rok {
			return strings.Contains(ls, rs), nil
		}
		return false, nil
	default:
		return nil, fmt.Errorf("workflow: unsupported operator %q", bo.Op)
	}
}

func (e *Engine) evalWithImplicit(wctx *Context, expr dsl.Expr, item any) (any, error) {
	if ip, ok := expr.(*dsl.ImplicitProperty); ok {
		return getPath(item, ip.Path), nil
	}
	return e.evalExpr(wctx, expr)
}

func getPath(base any, path []string) any {
	cur := base
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
