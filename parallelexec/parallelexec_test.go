package parallelexec

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/workflow"
)

type fakeAgents struct {
	mu      sync.Mutex
	outcome map[string]*workflow.RunOutcome
	err     map[string]error
}

func (f *fakeAgents) RunAgent(ctx context.Context, wctx *workflow.Context, name string, input any) (*workflow.RunOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.err[name]; ok {
		return nil, err
	}
	return f.outcome[name], nil
}

type fakeFlows struct{}

func (fakeFlows) RunFlow(ctx context.Context, wctx *workflow.Context, name string) ([]flowevent.Event, any, error) {
	return nil, "flow:" + name, nil
}

func TestRunParallelWritesDisjointTargets(t *testing.T) {
	agents := &fakeAgents{outcome: map[string]*workflow.RunOutcome{
		"summarizer": {FinalText: "summary", Events: []flowevent.Event{flowevent.NewTextEvent("summarizer", "summary", true)}},
		"critic":     {FinalText: "critique", Events: []flowevent.Event{flowevent.NewTextEvent("critic", "critique", true)}},
	}}
	x := New(agents, fakeFlows{})
	wctx := workflow.NewContext("hi")

	specs := []workflow.RunSpec{
		{Target: "sum", Agent: "summarizer"},
		{Target: "crit", Agent: "critic"},
	}
	events, err := x.RunParallel(context.Background(), wctx, specs)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	sum, ok := wctx.Get("sum")
	require.True(t, ok)
	assert.Equal(t, "summary", sum)
	crit, ok := wctx.Get("crit")
	require.True(t, ok)
	assert.Equal(t, "critique", crit)
}

func TestRunParallelFailsFastOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	agents := &fakeAgents{
		outcome: map[string]*workflow.RunOutcome{"ok": {FinalText: "fine"}},
		err:     map[string]error{"bad": boom},
	}
	x := New(agents, fakeFlows{})
	wctx := workflow.NewContext("hi")

	specs := []workflow.RunSpec{
		{Target: "a", Agent: "ok"},
		{Target: "b", Agent: "bad"},
	}
	_, err := x.RunParallel(context.Background(), wctx, specs)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRunParallelRunsSubFlows(t *testing.T) {
	x := New(&fakeAgents{}, fakeFlows{})
	wctx := workflow.NewContext("hi")
	specs := []workflow.RunSpec{{Target: "r", Agent: "sub", IsFlow: true}}
	_, err := x.RunParallel(context.Background(), wctx, specs)
	require.NoError(t, err)
	v, ok := wctx.Get("r")
	require.True(t, ok)
	assert.Equal(t, "flow:sub", v)
}
