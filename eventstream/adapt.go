package eventstream

import (
	"github.com/streetrace-ai/streetrace/flowevent"
)

// payload is the JSON-serializable shape a ContentEvent/EscalationEvent
// is flattened to before being handed to a Sink.
type payload struct {
	Author       string `json:"author,omitempty"`
	Text         string `json:"text,omitempty"`
	IsFinal      bool   `json:"is_final,omitempty"`
	Partial      bool   `json:"partial,omitempty"`
	Escalate     bool   `json:"escalate,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Agent        string `json:"agent,omitempty"`
	Result       string `json:"result,omitempty"`
	ConditionOp  string `json:"condition_op,omitempty"`
	ConditionVal string `json:"condition_val,omitempty"`
}

// FromFlowEvent adapts one flowevent.Event to the transport-neutral
// Event envelope published on a Bus.
func FromFlowEvent(runID, sessionID string, ev flowevent.Event) Event {
	switch e := ev.(type) {
	case *flowevent.ContentEvent:
		return Event{
			Type: "content", RunID: runID, SessionID: sessionID,
			Payload: payload{
				Author: e.Author, Text: e.FirstText(), IsFinal: e.IsFinal,
				Partial: e.Partial, Escalate: e.Actions.Escalate, ErrorMessage: e.ErrorMessage,
			},
		}
	case *flowevent.EscalationEvent:
		return Event{
			Type: "escalation", RunID: runID, SessionID: sessionID,
			Payload: payload{
				Agent: e.Agent, Result: e.Result,
				ConditionOp: e.ConditionOp, ConditionVal: e.ConditionVal,
			},
		}
	default:
		return Event{Type: "unknown", RunID: runID, SessionID: sessionID}
	}
}
