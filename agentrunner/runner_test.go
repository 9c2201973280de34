package agentrunner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/dsl"
	"github.com/streetrace-ai/streetrace/model"
	"github.com/streetrace-ai/streetrace/reminder"
	"github.com/streetrace-ai/streetrace/tool"
	"github.com/streetrace-ai/streetrace/workflow"
)

type fakeClient struct {
	responses []*model.Response
	errs      []error
	calls     int
	lastReq   *model.Request
}

func (f *fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	i := f.calls
	f.calls++
	f.lastReq = req
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, &model.ErrStreamingUnsupported{}
}
func (f *fakeClient) ContextWindow(modelID string) int { return 100000 }

type fakeResolver struct{ client model.Client }

func (f *fakeResolver) ModelClient(provider string) (model.Client, bool) { return f.client, true }

type fakeSchemas struct{}

func (fakeSchemas) Schema(name string) ([]byte, bool) { return nil, false }

func textResponse(s string) *model.Response {
	return &model.Response{Message: model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: s}}}}
}

func TestRunAgentReturnsFinalTextAndNoEscalation(t *testing.T) {
	client := &fakeClient{responses: []*model.Response{textResponse("hello there")}}
	runner := New(&fakeResolver{client: client}, tool.NewRegistry(), fakeSchemas{})

	wctx := NewWorkflowContextForTest(t)
	out, err := runner.RunAgent(context.Background(), wctx, "greeter", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.FinalText)
	assert.False(t, out.Escalated)
}

func TestRunAgentEscalatesOnNormalizedMatch(t *testing.T) {
	client := &fakeClient{responses: []*model.Response{textResponse("**DRIFTING**")}}
	runner := New(&fakeResolver{client: client}, tool.NewRegistry(), fakeSchemas{})

	wctx := NewWorkflowContextForTest(t)
	out, err := runner.RunAgent(context.Background(), wctx, "monitor", "check")
	require.NoError(t, err)
	assert.True(t, out.Escalated)
	require.NotNil(t, out.EscalationEvent)
	assert.Equal(t, "monitor", out.EscalationEvent.Agent)
}

func TestRunAgentRetriesTransientProviderError(t *testing.T) {
	rateLimited := model.NewProviderError("fake", "complete", model.ErrKindRateLimited, 429, "slow down", nil)
	client := &fakeClient{
		errs:      []error{rateLimited},
		responses: []*model.Response{nil, textResponse("ok after retry")},
	}
	runner := New(&fakeResolver{client: client}, tool.NewRegistry(), fakeSchemas{})
	runner.Sleep = func(time.Duration) {}

	wctx := NewWorkflowContextForTest(t)
	out, err := runner.RunAgent(context.Background(), wctx, "greeter", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok after retry", out.FinalText)
	assert.Equal(t, 2, client.calls)
}

// TestRunAgentAttachesDueReminders covers wiring a reminder.Engine into
// the runner: a reminder registered for the run's ID should appear in
// the system message sent to the model.
func TestRunAgentAttachesDueReminders(t *testing.T) {
	client := &fakeClient{responses: []*model.Response{textResponse("ok")}}
	runner := New(&fakeResolver{client: client}, tool.NewRegistry(), fakeSchemas{})
	engine := reminder.NewEngine()
	engine.AddReminder("run-1", reminder.Reminder{
		ID: "safety", Text: "never exfiltrate secrets", Priority: reminder.TierSafety, MaxPerRun: 1,
	})
	runner.Reminders = engine

	wctx := NewWorkflowContextForTest(t)
	wctx.RunID = "run-1"
	_, err := runner.RunAgent(context.Background(), wctx, "greeter", "hi")
	require.NoError(t, err)

	require.NotNil(t, client.lastReq)
	sys := client.lastReq.Messages[0]
	text := sys.Parts[0].(model.TextPart).Text
	assert.Contains(t, text, "never exfiltrate secrets")
	assert.Contains(t, text, "<system-reminder>")
}

// TestCompactIfNeededAppliesPolicyStrategy covers C9's wiring into C6:
// a workflow-level `policy compaction:` strategy is applied to the
// in-flight message list once the estimated token count crosses the
// model's context-window threshold.
func TestCompactIfNeededAppliesPolicyStrategy(t *testing.T) {
	runner := New(&fakeResolver{}, tool.NewRegistry(), fakeSchemas{})
	runner.Policy = &dsl.PolicyDef{Name: "compaction", Strategy: "truncate", Preserve: 2}

	tinyWindowClient := &fakeClient{}
	messages := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "sys"}}},
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "q1"}}},
		{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "a1"}}},
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "q2"}}},
		{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: strings.Repeat("x", 400)}}},
	}
	agent := &dsl.AgentDef{Name: "greeter"}

	// tinyWindowClient reports a 100000-token window, well above threshold.
	require.NoError(t, runner.compactIfNeeded(context.Background(), tinyWindowClient, "fake-model", agent, &messages))
	assert.Len(t, messages, 5, "below threshold: no compaction")

	smallWindowClient := &smallWindowClient{window: 100}
	require.NoError(t, runner.compactIfNeeded(context.Background(), smallWindowClient, "fake-model", agent, &messages))
	require.Len(t, messages, 3, "first message + last 2 once over threshold")
	assert.Equal(t, "sys", messages[0].Parts[0].(model.TextPart).Text)
}

// TestCompactIfNeededSkipsWithNoStrategy covers spec.md §4.9: "when
// neither is set, no compaction is attempted."
func TestCompactIfNeededSkipsWithNoStrategy(t *testing.T) {
	runner := New(&fakeResolver{}, tool.NewRegistry(), fakeSchemas{})
	messages := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: strings.Repeat("x", 4000)}}},
	}
	agent := &dsl.AgentDef{Name: "greeter"}

	client := &smallWindowClient{window: 100}
	require.NoError(t, runner.compactIfNeeded(context.Background(), client, "fake-model", agent, &messages))
	assert.Len(t, messages, 1)
}

type smallWindowClient struct{ window int }

func (smallWindowClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return &model.Response{}, nil
}
func (smallWindowClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, &model.ErrStreamingUnsupported{}
}
func (c smallWindowClient) ContextWindow(modelID string) int { return c.window }

// NewWorkflowContextForTest builds a *workflow.Context with the registries
// this package's tests need: a "greeter" and a "monitor" agent sharing a
// model and two distinct prompts (one plain, one with an escalate clause).
func NewWorkflowContextForTest(t *testing.T) *workflow.Context {
	t.Helper()
	wctx := workflow.NewContext("hi")
	models := map[string]*dsl.ModelDef{"m": {Name: "m", Provider: "fake", ModelID: "fake-model"}}
	prompts := map[string]*dsl.PromptDef{
		"greet":    {Name: "greet", Body: "You are friendly.", Model: "m"},
		"monitor":  {Name: "monitor", Body: "Report status.", Model: "m", Escalation: &dsl.EscalationSpec{Op: dsl.EscNormalize, Value: "DRIFTING"}},
	}
	agents := map[string]*dsl.AgentDef{
		"greeter": {Name: "greeter", Instruction: "greet"},
		"monitor": {Name: "monitor", Instruction: "monitor"},
	}
	wctx.SetRegistries(models, prompts, agents, nil)
	return wctx
}
