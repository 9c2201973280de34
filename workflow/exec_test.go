package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/dsl"
	"github.com/streetrace-ai/streetrace/flowevent"
)

type fakeAgents struct {
	outcome *RunOutcome
	err     error
}

func (f *fakeAgents) RunAgent(ctx context.Context, wctx *Context, name string, input any) (*RunOutcome, error) {
	return f.outcome, f.err
}

type fakeFlows struct{}

func (fakeFlows) RunFlow(ctx context.Context, wctx *Context, name string) ([]flowevent.Event, any, error) {
	return nil, "flow-result", nil
}

type fakeParallel struct{ ran []RunSpec }

func (f *fakeParallel) RunParallel(ctx context.Context, wctx *Context, specs []RunSpec) ([]flowevent.Event, error) {
	f.ran = append(f.ran, specs...)
	for _, s := range specs {
		if s.Target != "" {
			wctx.SetDisjoint(s.Target, "ok:"+s.Agent)
		}
	}
	return nil, nil
}

type fakeLLM struct{}

func (fakeLLM) CallLLM(ctx context.Context, wctx *Context, prompt string) ([]flowevent.Event, string, error) {
	return nil, "llm-said-hi", nil
}

func TestExecAssignmentAndReturn(t *testing.T) {
	eng := &Engine{Agents: &fakeAgents{}, Flows: fakeFlows{}, Parallel: &fakeParallel{}, LLM: fakeLLM{}}
	wctx := NewContext("hi")
	body := []dsl.Stmt{
		&dsl.Assignment{Target: "x", Value: &dsl.Literal{Type: dsl.LitString, Value: "v"}},
		&dsl.ReturnStmt{Value: &dsl.VarRef{Name: "x"}},
	}
	_, ret, err := eng.RunFlowBody(context.Background(), wctx, body)
	require.NoError(t, err)
	assert.Equal(t, "v", ret)
}

func TestExecEscalationReturnsHandlerValue(t *testing.T) {
	eng := &Engine{
		Agents: &fakeAgents{outcome: &RunOutcome{FinalText: "**DRIFTING**", Escalated: true,
			EscalationEvent: &flowevent.EscalationEvent{Agent: "a", Result: "**DRIFTING**", ConditionOp: "~", ConditionVal: "DRIFTING"}}},
		Flows: fakeFlows{}, Parallel: &fakeParallel{}, LLM: fakeLLM{},
	}
	wctx := NewContext("hi")
	wctx.Set("current", "fallback")
	body := []dsl.Stmt{
		&dsl.RunStmt{Agent: "a", EscalationHandler: &dsl.EscalationHandler{Kind: dsl.EscHandlerReturn, Value: &dsl.VarRef{Name: "current"}}},
	}
	events, ret, err := eng.RunFlowBody(context.Background(), wctx, body)
	require.NoError(t, err)
	assert.Equal(t, "fallback", ret)
	require.Len(t, events, 2)
	_, isEsc := events[0].(*flowevent.EscalationEvent)
	assert.True(t, isEsc)
}

func TestFilterWithNestedPropertyAndNull(t *testing.T) {
	eng := &Engine{Agents: &fakeAgents{}, Flows: fakeFlows{}, Parallel: &fakeParallel{}, LLM: fakeLLM{}}
	wctx := NewContext("hi")
	wctx.Set("items", []any{
		map[string]any{"fix": nil},
		map[string]any{"fix": map[string]any{"id": int64(1)}},
	})
	filter := &dsl.FilterExpr{
		ListExpr: &dsl.VarRef{Name: "items"},
		Condition: &dsl.BinaryOp{
			Op:    "!=",
			Left:  &dsl.ImplicitProperty{Path: []string{"fix"}},
			Right: &dsl.Literal{Type: dsl.LitNull},
		},
	}
	v, err := eng.evalExpr(wctx, filter)
	require.NoError(t, err)
	list := v.([]any)
	require.Len(t, list, 1)
	item := list[0].(map[string]any)
	fix := item["fix"].(map[string]any)
	assert.Equal(t, int64(1), fix["id"])
}

func TestParallelAssignsDisjointTargets(t *testing.T) {
	fp := &fakeParallel{}
	eng := &Engine{Agents: &fakeAgents{}, Flows: fakeFlows{}, Parallel: fp, LLM: fakeLLM{}}
	wctx := NewContext("hi")
	body := []dsl.Stmt{
		&dsl.ParallelBlock{Body: []dsl.Stmt{
			&dsl.RunStmt{Target: "r1", Agent: "A", Input: &dsl.Literal{Type: dsl.LitString, Value: "x"}},
			&dsl.RunStmt{Target: "r2", Agent: "B", Input: &dsl.Literal{Type: dsl.LitString, Value: "y"}},
		}},
	}
	_, _, err := eng.RunFlowBody(context.Background(), wctx, body)
	require.NoError(t, err)
	r1, _ := wctx.Get("r1")
	r2, _ := wctx.Get("r2")
	assert.Equal(t, "ok:A", r1)
	assert.Equal(t, "ok:B", r2)
	assert.Len(t, fp.ran, 2)
}

func TestStringifyTopLevelVsContainerBool(t *testing.T) {
	assert.Equal(t, "True", Stringify(true))
	assert.Equal(t, "False", Stringify(false))
	assert.Equal(t, `{"a":true,"b":null}`, Stringify(map[string]any{"a": true, "b": nil}))
}
