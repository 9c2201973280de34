// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// streetrace model.Client interface. There is no model-class tiering
// here: a `model <name> = provider/model` declaration names an exact
// model id, so there is no high/small tier selection to do.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/streetrace-ai/streetrace/model"
)

func jsonUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// MessagesClient captures the subset of the Anthropic SDK used by this
// adapter, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements model.Client on top of Anthropic's Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds a Client from an Anthropic Messages client.
func New(msg MessagesClient, defaultModel string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey builds a Client using the default Anthropic HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultModel, 4096)
}

// Complete issues a non-streaming Messages.New request.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, classifyError(err)
	}
	return translateResponse(msg), nil
}

// Stream is not implemented by this adapter; callers needing incremental
// output should use Complete and surface the full text at once — flows
// here consume only final agent text.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, &model.ErrStreamingUnsupported{Provider: "anthropic"}
}

// ContextWindow returns Anthropic's known context window for modelID.
func (c *Client) ContextWindow(modelID string) int {
	switch {
	case modelID == "claude-sonnet-4-5" || modelID == "claude-opus-4" || modelID == "claude-3-5-sonnet":
		return 200_000
	default:
		return 0
	}
}

func (c *Client) prepareRequest(req *model.Request) (*sdk.MessageNewParams, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, errors.New("anthropic: no model id configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			continue
		}
		msgs = append(msgs, translateMessage(m))
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if sys := systemText(req.Messages); sys != "" {
		params.System = []sdk.TextBlockParam{{Text: sys}}
	}
	return &params, nil
}

func systemText(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if tp, ok := p.(model.TextPart); ok {
					return tp.Text
				}
			}
		}
	}
	return ""
}

func translateMessage(m model.Message) sdk.MessageParam {
	role := sdk.MessageParamRoleUser
	if m.Role == model.RoleAssistant {
		role = sdk.MessageParamRoleAssistant
	}
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range m.Parts {
		switch part := p.(type) {
		case model.TextPart:
			blocks = append(blocks, sdk.NewTextBlock(part.Text))
		case model.ToolResultPart:
			blocks = append(blocks, sdk.NewToolResultBlock(part.ToolUseID, part.Content, part.IsError))
		}
	}
	return sdk.MessageParam{Role: role, Content: blocks}
}

func translateResponse(msg *sdk.Message) *model.Response {
	resp := &model.Response{
		Message: model.Message{Role: model.RoleAssistant},
		Usage: model.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		FinishReason: string(msg.StopReason),
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			resp.Message.Parts = append(resp.Message.Parts, model.TextPart{Text: b.Text})
		case sdk.ToolUseBlock:
			var input map[string]any
			_ = jsonUnmarshal(b.Input, &input)
			resp.Message.Parts = append(resp.Message.Parts, model.ToolUsePart{ID: b.ID, Name: b.Name, Input: input})
		}
	}
	return resp
}

func classifyError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return model.NewProviderError("anthropic", "messages.new", model.ErrKindRateLimited, apiErr.StatusCode, apiErr.Error(), err)
		case 500, 502, 503, 504:
			return model.NewProviderError("anthropic", "messages.new", model.ErrKindUnavailable, apiErr.StatusCode, apiErr.Error(), err)
		case 401, 403:
			return model.NewProviderError("anthropic", "messages.new", model.ErrKindAuth, apiErr.StatusCode, apiErr.Error(), err)
		default:
			return model.NewProviderError("anthropic", "messages.new", model.ErrKindInvalidRequest, apiErr.StatusCode, apiErr.Error(), err)
		}
	}
	return fmt.Errorf("anthropic: messages.new: %w", err)
}
