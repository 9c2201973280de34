// Package flowevent defines the event stream yielded by a running
// workflow: a tagged-variant sum of content events plus an
// EscalationEvent for handoffs to a human or supervising process.
package flowevent

import "time"

// Event is any value on a workflow's output stream. Each concrete type
// embeds Base and is immutable once yielded.
type Event interface {
	eventNode()
	Timestamp() time.Time
}

// Base carries the fields common to every event.
type Base struct {
	At time.Time
}

func (b Base) Timestamp() time.Time { return b.At }

// Part is a single content part of an Event, mirroring Session's Part
// variants (text, function_call, function_response).
type Part interface{ partNode() }

// TextPart is plain assistant/user text.
type TextPart struct{ Text string }

// FunctionCallPart is a tool invocation request.
type FunctionCallPart struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResponsePart is a tool invocation result.
type FunctionResponsePart struct {
	ID       string
	Name     string
	Response any
}

func (TextPart) partNode()             {}
func (FunctionCallPart) partNode()     {}
func (FunctionResponsePart) partNode() {}

// Actions carries side-channel signals attached to a ContentEvent, such as
// escalation.
type Actions struct {
	Escalate bool
}

// ContentEvent is the ADK-style event carrying author/content/finality.
type ContentEvent struct {
	Base
	Author       string
	Parts        []Part
	IsFinal      bool
	Partial      bool
	Actions      Actions
	ErrorMessage string
}

func (*ContentEvent) eventNode() {}

// EscalationEvent signals that an agent's result matched a configured
// escalation condition.
type EscalationEvent struct {
	Base
	Agent         string
	Result        string
	ConditionOp   string
	ConditionVal  string
}

func (*EscalationEvent) eventNode() {}

// NewTextEvent is a convenience constructor for a single-text ContentEvent.
func NewTextEvent(author, text string, isFinal bool) *ContentEvent {
	return &ContentEvent{
		Base: Base{At: time.Now()}, Author: author,
		Parts: []Part{TextPart{Text: text}}, IsFinal: isFinal,
	}
}

// FirstText returns the text of the first TextPart in the event, or ""
// if none.
func (e *ContentEvent) FirstText() string {
	for _, p := range e.Parts {
		if tp, ok := p.(TextPart); ok {
			return tp.Text
		}
	}
	return ""
}
