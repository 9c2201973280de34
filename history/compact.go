// Package history bounds a session's message list before each model
// call, per the `policy compaction:` declaration's strategy (truncate
// or summarize). Both strategies operate on the flat message index per
// spec.md §4.9's literal algorithm: keep the first message and the last
// N, dropping or summarizing whatever falls in between.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/streetrace-ai/streetrace/model"
)

// ModelContextWindows is the fallback table consulted when a
// model.Client.ContextWindow returns 0 (unknown model id), grounded on
// the published context windows of the providers this repo's model
// adapters target.
var ModelContextWindows = map[string]int{
	"claude-sonnet-4-5": 200_000,
	"claude-opus-4":     200_000,
	"claude-3-5-sonnet": 200_000,
	"gpt-4o":            128_000,
	"gpt-4.1":           128_000,
	"o1":                200_000,
	"o3":                200_000,
}

// defaultContextWindow is used when neither the client nor the table
// knows the model.
const defaultContextWindow = 128_000

// compactThreshold is the fraction of the context window at which
// compaction is triggered.
const compactThreshold = 0.8

// defaultKeepN is the strategies' default number of trailing messages
// preserved when a policy's `preserve` property is unset (<=0).
const defaultKeepN = 4

// EstimateTokens approximates a message list's token count as
// ceil(chars/4) over its text parts. It does not consult a provider
// token counter; this estimate is the only one ShouldCompact uses.
func EstimateTokens(msgs []model.Message) int {
	chars := 0
	for _, m := range msgs {
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				chars += len(tp.Text)
			}
		}
	}
	return (chars + 3) / 4
}

// ContextWindowFor resolves the known context window for modelID,
// consulting the client first and falling back to the static table.
func ContextWindowFor(client model.Client, modelID string) int {
	if client != nil {
		if w := client.ContextWindow(modelID); w > 0 {
			return w
		}
	}
	if w, ok := ModelContextWindows[modelID]; ok {
		return w
	}
	return defaultContextWindow
}

// ShouldCompact reports whether msgs' estimated token count has crossed
// compactThreshold of the model's context window.
func ShouldCompact(client model.Client, modelID string, msgs []model.Message) bool {
	window := ContextWindowFor(client, modelID)
	return float64(EstimateTokens(msgs)) >= compactThreshold*float64(window)
}

// resolveKeepN applies the default when a policy's `preserve` property
// is unset or non-positive.
func resolveKeepN(keepN int) int {
	if keepN <= 0 {
		return defaultKeepN
	}
	return keepN
}

// Truncate keeps the first message and the last keepN messages (default
// 4), dropping everything in between, per spec.md §4.9's truncate
// strategy. A list of keepN+1 messages or fewer (5 at the default) is
// returned unchanged — there is no middle segment left to drop.
func Truncate(_ context.Context, msgs []model.Message, keepN int) ([]model.Message, error) {
	keepN = resolveKeepN(keepN)
	if len(msgs) <= keepN+1 {
		return msgs, nil
	}
	out := make([]model.Message, 0, keepN+1)
	out = append(out, msgs[0])
	out = append(out, msgs[len(msgs)-keepN:]...)
	return out, nil
}

// Summarize collapses the messages between the first and the last keepN
// into a single assistant message containing an LLM-produced summary,
// per spec.md §4.9's summarize strategy. Without an LLM client it falls
// back to Truncate. A list of keepN+1 messages or fewer is returned
// unchanged, matching Truncate's boundary.
func Summarize(ctx context.Context, client model.Client, modelID string, msgs []model.Message, keepN int) ([]model.Message, error) {
	keepN = resolveKeepN(keepN)
	if client == nil {
		return Truncate(ctx, msgs, keepN)
	}
	if len(msgs) <= keepN+1 {
		return msgs, nil
	}

	first := msgs[0]
	recent := msgs[len(msgs)-keepN:]
	middle := msgs[1 : len(msgs)-keepN]

	var sb strings.Builder
	for _, m := range middle {
		sb.WriteString(formatMessage(m))
		sb.WriteString("\n")
	}

	req := &model.Request{
		Model: modelID,
		Messages: []model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: fmt.Sprintf(summaryPrompt, sb.String())}}},
		},
	}
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("history: summarize: %w", err)
	}

	var summaryText strings.Builder
	for _, p := range resp.Message.Parts {
		if tp, ok := p.(model.TextPart); ok {
			summaryText.WriteString(tp.Text)
		}
	}

	out := make([]model.Message, 0, 2+len(recent))
	out = append(out, first)
	out = append(out, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: summaryText.String()}}})
	out = append(out, recent...)
	return out, nil
}

func formatMessage(m model.Message) string {
	var sb strings.Builder
	sb.WriteString(string(m.Role))
	sb.WriteString(": ")
	for _, p := range m.Parts {
		switch part := p.(type) {
		case model.TextPart:
			sb.WriteString(part.Text)
		case model.ToolUsePart:
			fmt.Fprintf(&sb, "[tool call %s]", part.Name)
		case model.ToolResultPart:
			sb.WriteString(part.Content)
		}
	}
	return sb.String()
}

const summaryPrompt = `Summarize the conversation so far, preserving the user's goals, decisions made, and any open threads. Be concise.

CONVERSATION:
%s`
