package agentrunner

import (
	"context"
	"fmt"
	"strings"

	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/model"
	"github.com/streetrace-ai/streetrace/workflow"
)

// LLMCaller implements workflow.LLMCaller for `call llm <prompt>`
// statements: a single request/response exchange, as opposed to
// RunAgent's tool-calling conversation loop.
type LLMCaller struct {
	Models ModelResolver
}

// CallLLM resolves the named prompt's model (falling back to "main"),
// renders its body against the current context, and issues one
// completion request.
func (c *LLMCaller) CallLLM(ctx context.Context, wctx *workflow.Context, promptName string) ([]flowevent.Event, string, error) {
	prompt, ok := wctx.Prompt(promptName)
	if !ok {
		return nil, "", fmt.Errorf("agentrunner: call llm: unknown prompt %q", promptName)
	}

	modelName := prompt.Model
	if modelName == "" {
		modelName = "main"
	}
	modelDef, ok := wctx.Model(modelName)
	if !ok {
		return nil, "", fmt.Errorf("agentrunner: call llm: prompt %q has no resolvable model %q", promptName, modelName)
	}
	client, ok := c.Models.ModelClient(modelDef.Provider)
	if !ok {
		return nil, "", fmt.Errorf("agentrunner: call llm: no model client configured for provider %q", modelDef.Provider)
	}

	body, err := workflow.RenderPromptBody(prompt.Body, wctx)
	if err != nil {
		return nil, "", err
	}

	req := &model.Request{
		Model:    modelDef.ModelID,
		Messages: []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: body}}}},
	}
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("agentrunner: call llm %q: %w", promptName, err)
	}

	var text strings.Builder
	for _, p := range resp.Message.Parts {
		if tp, ok := p.(model.TextPart); ok {
			text.WriteString(tp.Text)
		}
	}
	result := text.String()
	ev := flowevent.NewTextEvent(promptName, result, true)
	return []flowevent.Event{ev}, result, nil
}
