// Package openai adapts github.com/openai/openai-go to the streetrace
// model.Client interface, mirroring the shape of model/anthropic.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/streetrace-ai/streetrace/model"
)

// ChatClient captures the subset of the OpenAI SDK used by this adapter.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements model.Client on top of OpenAI's Chat Completions API.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New builds a Client from an OpenAI chat-completions client.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey builds a Client using the default OpenAI HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, defaultModel)
}

// Complete issues a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, errors.New("openai: no model id configured")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: translateMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	return translateResponse(resp), nil
}

// Stream is not implemented; see model/anthropic.Client.Stream for the
// same reasoning.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, &model.ErrStreamingUnsupported{Provider: "openai"}
}

// ContextWindow returns OpenAI's known context window for modelID.
func (c *Client) ContextWindow(modelID string) int {
	switch modelID {
	case "gpt-4o", "gpt-4.1":
		return 128_000
	case "o1", "o3":
		return 200_000
	default:
		return 0
	}
}

func translateMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		text := firstText(m)
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

func firstText(m model.Message) string {
	for _, p := range m.Parts {
		if tp, ok := p.(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

func translateResponse(resp *openai.ChatCompletion) *model.Response {
	out := &model.Response{Message: model.Message{Role: model.RoleAssistant}}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Message.Parts = append(out.Message.Parts, model.TextPart{Text: choice.Message.Content})
		out.FinishReason = string(choice.FinishReason)
	}
	out.Usage = model.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return model.NewProviderError("openai", "chat.completions.new", model.ErrKindRateLimited, apiErr.StatusCode, apiErr.Error(), err)
		case 500, 502, 503, 504:
			return model.NewProviderError("openai", "chat.completions.new", model.ErrKindUnavailable, apiErr.StatusCode, apiErr.Error(), err)
		case 401, 403:
			return model.NewProviderError("openai", "chat.completions.new", model.ErrKindAuth, apiErr.StatusCode, apiErr.Error(), err)
		default:
			return model.NewProviderError("openai", "chat.completions.new", model.ErrKindInvalidRequest, apiErr.StatusCode, apiErr.Error(), err)
		}
	}
	return fmt.Errorf("openai: chat.completions.new: %w", err)
}
