// Package model defines the provider-agnostic LLM wire types consumed by
// agentrunner and history. Citation/document parts are dropped (see
// DESIGN.md) since no prompt or tool here produces them; text, tool-use,
// tool-result, and thinking parts are kept.
package model

import "context"

// Role is the message author role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one piece of a Message's content, a tagged variant matched by
// type switch.
type Part interface{ partNode() }

// TextPart is plain text content.
type TextPart struct{ Text string }

// ThinkingPart is provider-native extended reasoning content.
type ThinkingPart struct {
	Text      string
	Signature string
}

// ToolUsePart is a model-issued tool call.
type ToolUsePart struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultPart is the result of a tool call fed back to the model.
type ToolResultPart struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextPart) partNode()       {}
func (ThinkingPart) partNode()   {}
func (ToolUsePart) partNode()    {}
func (ToolResultPart) partNode() {}

// Message is one turn of conversation history.
type Message struct {
	Role  Role
	Parts []Part
	Meta  map[string]any
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolChoiceMode constrains whether/how the model must call a tool.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceNone ToolChoiceMode = "none"
)

// ToolChoice pairs a mode with an optional forced tool name.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// TokenUsage reports token accounting for a single completion.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request is one completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  *ToolChoice
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// Response is a non-streaming completion result.
type Response struct {
	Message      Message
	Usage        TokenUsage
	FinishReason string
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	DeltaText string
	ToolUse   *ToolUsePart
	Usage     *TokenUsage
	Done      bool
}

// Streamer is a pull-based iterator over a streaming completion.
type Streamer interface {
	Recv(ctx context.Context) (*Chunk, error)
	Close() error
}

// Client is the provider-agnostic LLM interface agentrunner and history
// depend on; model/anthropic and model/openai each implement it.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
	// ContextWindow returns the known context window in tokens for the
	// given model id, or 0 if unknown (callers fall back to a default).
	ContextWindow(modelID string) int
}

// ErrStreamingUnsupported is returned by Stream on clients that only
// support Complete.
type ErrStreamingUnsupported struct{ Provider string }

func (e *ErrStreamingUnsupported) Error() string {
	return e.Provider + ": streaming not supported by this client"
}
