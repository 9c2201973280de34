package agentrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streetrace-ai/streetrace/dsl"
	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/history"
	"github.com/streetrace-ai/streetrace/mcp/retry"
	"github.com/streetrace-ai/streetrace/model"
	"github.com/streetrace-ai/streetrace/reminder"
	"github.com/streetrace-ai/streetrace/tool"
	"github.com/streetrace-ai/streetrace/workflow"
)

// maxToolIterations bounds the tool-call/response loop within a single
// agent turn, guarding against a misbehaving model issuing tool calls
// forever.
const maxToolIterations = 8

// ModelResolver looks up the model.Client for a provider name, populated
// by the workload loader from the process's configured API keys.
type ModelResolver interface {
	ModelClient(provider string) (model.Client, bool)
}

// Runner implements workflow.AgentRunner: it drives one agent's model
// conversation to a final answer, dispatching any tool calls through the
// tool registry and checking the agent's prompt for escalation.
type Runner struct {
	Models    ModelResolver
	Tools     *tool.Registry
	Schemas   schemaRegistry
	Reminders *reminder.Engine // optional; nil means no reminder injection
	Sleep     func(time.Duration) // overridable for tests; defaults to time.Sleep

	// Policy is the workflow's `policy compaction:` block, if declared.
	// An agent's own History override (dsl.AgentDef.History) takes
	// precedence over Policy.Strategy; when neither names a strategy, no
	// compaction is attempted, per spec.md §4.9.
	Policy *dsl.PolicyDef
}

// New builds a Runner whose Sleep is time.Sleep.
func New(models ModelResolver, tools *tool.Registry, schemas schemaRegistry) *Runner {
	return &Runner{Models: models, Tools: tools, Schemas: schemas, Sleep: time.Sleep}
}

// RunAgent implements workflow.AgentRunner.
func (r *Runner) RunAgent(ctx context.Context, wctx *workflow.Context, agentName string, input any) (*workflow.RunOutcome, error) {
	agent, ok := wctx.Agent(agentName)
	if !ok {
		return nil, fmt.Errorf("agentrunner: unknown agent %q", agentName)
	}
	prompt, ok := wctx.Prompt(agent.Instruction)
	if !ok {
		return nil, fmt.Errorf("agentrunner: agent %q references unknown prompt %q", agentName, agent.Instruction)
	}
	modelDef, ok := wctx.Model(prompt.Model)
	if !ok {
		return nil, fmt.Errorf("agentrunner: prompt %q has no resolvable model", prompt.Name)
	}
	client, ok := r.Models.ModelClient(modelDef.Provider)
	if !ok {
		return nil, fmt.Errorf("agentrunner: no model client configured for provider %q", modelDef.Provider)
	}

	wctx.TrackCreatedAgent(agentName)

	renderedInstruction, err := workflow.RenderPromptBody(prompt.Body, wctx)
	if err != nil {
		return nil, err
	}
	renderedInstruction = r.attachReminders(wctx.RunID, renderedInstruction)

	messages := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: renderedInstruction}}},
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: workflow.Stringify(input)}}},
	}

	var events []flowevent.Event
	finalText, err := r.converse(ctx, client, modelDef.ModelID, agent, &messages, &events)
	if err != nil {
		return nil, err
	}

	outcome := &workflow.RunOutcome{FinalText: finalText, Events: events}

	if prompt.Schema != "" {
		if verr := validateOutput(prompt.Schema, r.Schemas, []byte(finalText)); verr != nil {
			events = append(events, flowevent.NewTextEvent(agentName, verr.Error(), false))
			outcome.Events = events
			return outcome, verr
		}
	}

	if prompt.Escalation != nil {
		op := flowevent.EscalationOp(prompt.Escalation.Op)
		if flowevent.Matches(op, finalText, prompt.Escalation.Value) {
			outcome.Escalated = true
			outcome.EscalationEvent = &flowevent.EscalationEvent{
				Base: flowevent.Base{At: time.Now()}, Agent: agentName,
				Result: finalText, ConditionOp: string(op), ConditionVal: prompt.Escalation.Value,
			}
			outcome.Events = append(outcome.Events, outcome.EscalationEvent)
		}
	}

	return outcome, nil
}

// attachReminders appends the run's pending <system-reminder> blocks (if
// any) to a rendered instruction, per reminder.DefaultExplanation's
// documented contract. A nil Reminders engine or empty runID is a no-op.
func (r *Runner) attachReminders(runID, instruction string) string {
	if r.Reminders == nil || runID == "" {
		return instruction
	}
	due := r.Reminders.Snapshot(runID)
	if len(due) == 0 {
		return instruction
	}
	var b strings.Builder
	b.WriteString(instruction)
	for _, rem := range due {
		b.WriteString("\n\n<system-reminder>\n")
		b.WriteString(rem.Text)
		b.WriteString("\n</system-reminder>")
	}
	return b.String()
}

// converse drives the model/tool loop to a final text answer, retrying
// transient provider errors per the Decide policy.
func (r *Runner) converse(ctx context.Context, client model.Client, modelID string, agent *dsl.AgentDef, messages *[]model.Message, events *[]flowevent.Event) (string, error) {
	for iter := 0; iter < maxToolIterations; iter++ {
		if err := r.compactIfNeeded(ctx, client, modelID, agent, messages); err != nil {
			return "", err
		}
		resp, err := r.completeWithRetry(ctx, client, modelID, agent, *messages)
		if err != nil {
			return "", err
		}

		var toolCalls []model.ToolUsePart
		var text strings.Builder
		for _, p := range resp.Message.Parts {
			switch part := p.(type) {
			case model.TextPart:
				text.WriteString(part.Text)
			case model.ToolUsePart:
				toolCalls = append(toolCalls, part)
			}
		}
		*messages = append(*messages, resp.Message)

		if len(toolCalls) == 0 {
			*events = append(*events, flowevent.NewTextEvent(agent.Name, text.String(), true))
			return text.String(), nil
		}

		var resultParts []model.Part
		for _, call := range toolCalls {
			*events = append(*events, &flowevent.ContentEvent{
				Base: flowevent.Base{At: time.Now()}, Author: agent.Name,
				Parts: []flowevent.Part{flowevent.FunctionCallPart{ID: call.ID, Name: call.Name, Args: call.Input}},
			})
			result, callErr := r.Tools.Call(ctx, call.Name, call.Input)
			isErr := callErr != nil
			content := stringifyToolResult(result, callErr)
			*events = append(*events, &flowevent.ContentEvent{
				Base: flowevent.Base{At: time.Now()}, Author: agent.Name,
				Parts: []flowevent.Part{flowevent.FunctionResponsePart{ID: call.ID, Name: call.Name, Response: content}},
			})
			resultParts = append(resultParts, model.ToolResultPart{ToolUseID: call.ID, Content: content, IsError: isErr})
		}
		*messages = append(*messages, model.Message{Role: model.RoleUser, Parts: resultParts})
	}
	return "", fmt.Errorf("agentrunner: agent %q exceeded %d tool-call iterations", agent.Name, maxToolIterations)
}

// compactIfNeeded applies the workflow's compaction policy (or the
// agent's own History override) to *messages once history.ShouldCompact
// reports the estimated token count has crossed the threshold for
// modelID, per spec.md §4.9. An agent's History overrides the policy's
// strategy when present; with neither set, no compaction is attempted.
func (r *Runner) compactIfNeeded(ctx context.Context, client model.Client, modelID string, agent *dsl.AgentDef, messages *[]model.Message) error {
	strategy := agent.History
	preserve := 0
	if r.Policy != nil {
		if strategy == "" {
			strategy = r.Policy.Strategy
		}
		preserve = r.Policy.Preserve
	}
	if strategy == "" {
		return nil
	}
	if !history.ShouldCompact(client, modelID, *messages) {
		return nil
	}

	var compacted []model.Message
	var err error
	switch strategy {
	case "summarize":
		compacted, err = history.Summarize(ctx, client, modelID, *messages, preserve)
	default:
		compacted, err = history.Truncate(ctx, *messages, preserve)
	}
	if err != nil {
		return err
	}
	*messages = compacted
	return nil
}

// stringifyToolResult renders a tool call's outcome as the text handed
// back to the model as its function_response. When the failure is an MCP
// invalid-params retry.RetryableError anywhere in the error chain, its
// repair prompt is surfaced directly instead of the wrapping
// toolerrors.ToolError's generic summary, so the model sees concrete
// correction instructions rather than just "tool X failed".
func stringifyToolResult(result any, err error) string {
	if err != nil {
		var retryable *retry.RetryableError
		if errors.As(err, &retryable) {
			return retryable.Prompt
		}
		return err.Error()
	}
	b, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}

// completeWithRetry calls client.Complete, retrying provider errors
// classified as transient per the incrementing backoff policy.
func (r *Runner) completeWithRetry(ctx context.Context, client model.Client, modelID string, agent *dsl.AgentDef, messages []model.Message) (*model.Response, error) {
	req := &model.Request{Model: modelID, Messages: messages}
	attempt := 0
	for {
		attempt++
		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		pe, _ := model.AsProviderError(err)
		retryable := pe != nil && pe.Retryable
		decision := Decide(attempt, retryable)
		if decision.Exhausted {
			return nil, fmt.Errorf("agentrunner: agent %q: %w", agent.Name, err)
		}
		sleep := r.Sleep
		if sleep == nil {
			sleep = time.Sleep
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		sleep(decision.After)
	}
}
